package events

import (
	"encoding/json"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	bus.Publish(&Event{Type: "unknown"})
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}
}

func TestEventBusSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	var seen []string

	bus.Subscribe(EventListingCreated, func(e *Event) error { seen = append(seen, "typed:"+e.Type); return nil })
	bus.SubscribeAll(func(e *Event) error { seen = append(seen, "all:"+e.Type); return nil })

	if err := bus.PublishJSON(EventListingCreated, ListingEventPayload{ListingID: 1}); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}
	if err := bus.PublishJSON(EventEnquiryCreated, EnquiryEventPayload{EnquiryID: 2}); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	want := []string{"typed:listing.created", "all:listing.created", "all:enquiry.created"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *EventBus
	if err := bus.PublishJSON(EventBookingCreated, nil); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}

func TestEventDecode(t *testing.T) {
	bus := NewEventBus()
	var decoded BookingEventPayload
	bus.Subscribe(BookingTransitionEvent("accept"), func(e *Event) error {
		return e.Decode(&decoded)
	})

	if err := bus.PublishJSON("booking.accept", BookingEventPayload{BookingID: 123, Status: "accepted"}); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if decoded.BookingID != 123 || decoded.Status != "accepted" {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

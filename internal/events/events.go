package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventListingCreated        = "listing.created"
	EventListingUpdated        = "listing.updated"
	EventListingVerified       = "listing.verified"
	EventListingStatusChanged  = "listing.status_changed"
	EventRequestSubmitted      = "provider_request.submitted"
	EventRequestDecided        = "provider_request.decided"
	EventBookingCreated        = "booking.created"
	EventBookingRated          = "booking.rated"
	EventEnquiryCreated        = "enquiry.created"
	eventBookingTransitionBase = "booking."
)

// BookingTransitionEvent names the event published after a booking action,
// e.g. booking.accept.
func BookingTransitionEvent(action string) string {
	return eventBookingTransitionBase + action
}

// ListingEventPayload is the listing snapshot carried by listing.* events.
type ListingEventPayload struct {
	ListingID          int64   `json:"listing_id"`
	OwnerID            int64   `json:"owner_id"`
	Kind               string  `json:"kind"`
	Title              string  `json:"title"`
	City               string  `json:"city"`
	Status             string  `json:"status"`
	VerificationStatus string  `json:"verification_status"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     int64   `json:"booking_id"`
	ServiceID     int64   `json:"service_id"`
	CustomerID    int64   `json:"customer_id"`
	ProviderID    int64   `json:"provider_id"`
	Status        string  `json:"status"`
	ScheduledDate string  `json:"scheduled_date"`
	TotalPrice    float64 `json:"total_price"`
	ChangedByID   int64   `json:"changed_by_id,omitempty"`
	Rating        int     `json:"rating,omitempty"`
}

type ProviderRequestEventPayload struct {
	RequestID       int64  `json:"request_id"`
	UserID          int64  `json:"user_id"`
	ServiceCategory string `json:"service_category"`
	Status          string `json:"status"`
	ReviewedBy      int64  `json:"reviewed_by,omitempty"`
}

type EnquiryEventPayload struct {
	EnquiryID  int64  `json:"enquiry_id"`
	TargetType string `json:"target_type"`
	TargetID   int64  `json:"target_id"`
	OwnerID    int64  `json:"owner_id"`
	Name       string `json:"name"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	wildcard    []EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler that receives every event.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// Publish notifies subscribers of the event type, then the wildcard subscribers.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextBookingStatus(t *testing.T) {
	cases := []struct {
		from   string
		action BookingAction
		want   string
		ok     bool
	}{
		{BookingPending, ActionAccept, BookingAccepted, true},
		{BookingPending, ActionReject, BookingRejected, true},
		{BookingPending, ActionCancel, BookingCancelled, true},
		{BookingPending, ActionComplete, "", false},
		{BookingAccepted, ActionComplete, BookingCompleted, true},
		{BookingAccepted, ActionCancel, BookingCancelled, true},
		{BookingAccepted, ActionReject, "", false},
		{BookingCompleted, ActionCancel, "", false},
		{BookingRejected, ActionAccept, "", false},
		{BookingCancelled, ActionAccept, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.from+"_"+string(tc.action), func(t *testing.T) {
			got, ok := NextBookingStatus(tc.from, tc.action)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCanTransitionListing(t *testing.T) {
	assert.True(t, CanTransitionListing(KindProperty, ListingPending, ListingActive))
	assert.True(t, CanTransitionListing(KindBuilderProject, ListingActive, ListingSold))
	assert.True(t, CanTransitionListing(KindProperty, ListingRented, ListingActive))
	assert.False(t, CanTransitionListing(KindProperty, ListingPending, ListingSold))
	assert.False(t, CanTransitionListing(KindProperty, ListingSold, ListingActive))

	assert.True(t, CanTransitionListing(KindMonositi, ListingAvailable, ListingBooked))
	assert.True(t, CanTransitionListing(KindMonositi, ListingBooked, ListingAvailable))
	assert.False(t, CanTransitionListing(KindMonositi, ListingBooked, ListingFullHouse))
	assert.False(t, CanTransitionListing(KindMonositi, ListingAvailable, ListingFullHouse))
}

func TestListingDiscoverable(t *testing.T) {
	l := &Listing{VerificationStatus: VerificationVerified, Status: ListingActive}
	assert.True(t, l.Discoverable())

	l.Status = ListingSold
	assert.False(t, l.Discoverable())

	l = &Listing{VerificationStatus: VerificationPending, Status: ListingAvailable}
	assert.False(t, l.Discoverable())
}

func TestRoomStatusFor(t *testing.T) {
	assert.Equal(t, RoomFull, RoomStatusFor(0))
	assert.Equal(t, RoomAvailable, RoomStatusFor(1))
}

func TestServiceAvailableOn(t *testing.T) {
	s := &Service{}
	assert.True(t, s.AvailableOn("2025-01-01"))

	s.AvailabilityCalendar = []string{"2025-01-02"}
	assert.False(t, s.AvailableOn("2025-01-01"))
	assert.True(t, s.AvailableOn("2025-01-02"))
}

func TestPageNormalize(t *testing.T) {
	p := Page{}.Normalize()
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, DefaultPageSize, p.Size)

	p = Page{Number: 3, Size: 500}.Normalize()
	assert.Equal(t, MaxPageSize, p.Size)
	assert.Equal(t, 2*MaxPageSize, Page{Number: 3, Size: 500}.Offset())
}

func TestEnquiryTransitions(t *testing.T) {
	assert.True(t, CanTransitionEnquiry(EnquiryNew, EnquiryContacted))
	assert.True(t, CanTransitionEnquiry(EnquiryNew, EnquiryClosed))
	assert.True(t, CanTransitionEnquiry(EnquiryContacted, EnquiryClosed))
	assert.False(t, CanTransitionEnquiry(EnquiryClosed, EnquiryNew))
}

package models

import "time"

const (
	BookingPending   = "pending"
	BookingAccepted  = "accepted"
	BookingRejected  = "rejected"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

type BookingAction string

const (
	ActionAccept   BookingAction = "accept"
	ActionReject   BookingAction = "reject"
	ActionComplete BookingAction = "complete"
	ActionCancel   BookingAction = "cancel"
)

var bookingEdges = map[string]map[BookingAction]string{
	BookingPending: {
		ActionAccept: BookingAccepted,
		ActionReject: BookingRejected,
		ActionCancel: BookingCancelled,
	},
	BookingAccepted: {
		ActionComplete: BookingCompleted,
		ActionCancel:   BookingCancelled,
	},
}

// NextBookingStatus follows the edge for action out of status.
func NextBookingStatus(status string, action BookingAction) (string, bool) {
	next, ok := bookingEdges[status][action]
	return next, ok
}

type ServiceBooking struct {
	ID             int64     `json:"id"`
	ServiceID      int64     `json:"service_id"`
	CustomerID     int64     `json:"customer_id"`
	ProviderID     int64     `json:"provider_id"` // copied from the service at creation
	ScheduledDate  string    `json:"scheduled_date"`
	Addons         []Addon   `json:"addons"`
	TotalPrice     float64   `json:"total_price"`
	Notes          string    `json:"notes,omitempty"`
	Status         string    `json:"status"`
	CustomerRating *int      `json:"customer_rating,omitempty"`
	CustomerReview string    `json:"customer_review,omitempty"`
	ProviderRating *int      `json:"provider_rating,omitempty"`
	ProviderReview string    `json:"provider_review,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int64     `json:"version"`
}

// Rating parties on a booking.
const (
	PartyCustomer = "customer"
	PartyProvider = "provider"
)

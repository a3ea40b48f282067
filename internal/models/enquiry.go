package models

import "time"

const (
	TargetListing = "listing"
	TargetService = "service"
)

const (
	EnquiryNew       = "new"
	EnquiryContacted = "contacted"
	EnquiryClosed    = "closed"
)

var enquiryTransitions = map[string][]string{
	EnquiryNew:       {EnquiryContacted, EnquiryClosed},
	EnquiryContacted: {EnquiryClosed},
}

// CanTransitionEnquiry reports whether an enquiry may move from one status to another.
func CanTransitionEnquiry(from, to string) bool {
	for _, next := range enquiryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Enquiry struct {
	ID         int64     `json:"id"`
	TargetType string    `json:"target_type"` // listing or service
	TargetID   int64     `json:"target_id"`
	OwnerID    int64     `json:"owner_id"` // listing owner or service provider
	UserID     *int64    `json:"user_id,omitempty"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email,omitempty"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int64     `json:"version"`
}

package models

import "time"

type ListingKind string

const (
	KindProperty       ListingKind = "property"
	KindBuilderProject ListingKind = "builder_project"
	KindMonositi       ListingKind = "monositi"
)

func (k ListingKind) Valid() bool {
	switch k {
	case KindProperty, KindBuilderProject, KindMonositi:
		return true
	}
	return false
}

// Monositi listing categories.
const (
	CategoryHostel     = "hostel"
	CategoryCommercial = "commercial"
	CategoryLand       = "land"
)

// Availability statuses. Property and builder project listings move through
// pending/active/sold/rented; monositi listings through available/booked/fullhouse.
const (
	ListingPending   = "pending"
	ListingActive    = "active"
	ListingSold      = "sold"
	ListingRented    = "rented"
	ListingAvailable = "available"
	ListingBooked    = "booked"
	ListingFullHouse = "fullhouse"
)

// Listing metrics bumped on public reads and enquiries.
const (
	MetricViews = "views"
	MetricLeads = "leads"
)

var saleTransitions = map[string][]string{
	ListingPending: {ListingActive},
	ListingActive:  {ListingSold, ListingRented},
	ListingRented:  {ListingActive},
}

// fullhouse is derived from room inventory and is never a direct target.
var monositiTransitions = map[string][]string{
	ListingAvailable: {ListingBooked},
	ListingBooked:    {ListingAvailable},
}

type Listing struct {
	ID                 int64       `json:"id"`
	OwnerID            int64       `json:"owner_id"`
	Kind               ListingKind `json:"kind"`
	Category           string      `json:"category,omitempty"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	City               string      `json:"city"`
	Address            string      `json:"address,omitempty"`
	Latitude           float64     `json:"latitude"`
	Longitude          float64     `json:"longitude"`
	Price              float64     `json:"price"`
	PriceMax           float64     `json:"price_max,omitempty"`
	Images             []string    `json:"images"`
	Documents          []string    `json:"documents"`
	Amenities          []string    `json:"amenities"`
	Status             string      `json:"status"`
	VerificationStatus string      `json:"verification_status"`
	Views              int64       `json:"views"`
	Leads              int64       `json:"leads"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	Version            int64       `json:"version"`
}

// InitialListingStatus is the availability status a freshly created listing starts in.
func InitialListingStatus(kind ListingKind) string {
	if kind == KindMonositi {
		return ListingAvailable
	}
	return ListingPending
}

// CanTransitionListing reports whether an owner may move a listing of the given
// kind from one availability status to another.
func CanTransitionListing(kind ListingKind, from, to string) bool {
	table := saleTransitions
	if kind == KindMonositi {
		table = monositiTransitions
	}
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsAvailableStatus reports whether status counts as open for discovery.
func IsAvailableStatus(status string) bool {
	return status == ListingActive || status == ListingAvailable
}

// Discoverable is true only for verified listings in an available status.
func (l *Listing) Discoverable() bool {
	return l.VerificationStatus == VerificationVerified && IsAvailableStatus(l.Status)
}

// HasRooms reports whether the listing carries bed inventory.
func (l *Listing) HasRooms() bool {
	return l.Kind == KindMonositi && l.Category == CategoryHostel
}

// ListingFilter narrows public listing queries.
type ListingFilter struct {
	City     string
	Kind     ListingKind
	Category string
	MinPrice float64
	MaxPrice float64
	Page     Page
}

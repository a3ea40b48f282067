package models

import "time"

const DateLayout = "2006-01-02"

type Addon struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Service struct {
	ID                   int64     `json:"id"`
	ProviderID           int64     `json:"provider_id"`
	Name                 string    `json:"name"`
	Category             string    `json:"category"`
	Description          string    `json:"description,omitempty"`
	City                 string    `json:"city,omitempty"`
	BasePrice            float64   `json:"base_price"`
	Addons               []Addon   `json:"addons"`
	AvailabilityCalendar []string  `json:"availability_calendar"` // YYYY-MM-DD
	Images               []string  `json:"images"`
	ActiveStatus         bool      `json:"active_status"`
	MonositiVerified     bool      `json:"monositi_verified"`
	Ratings              float64   `json:"ratings"`
	RatingCount          int       `json:"rating_count"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	Version              int64     `json:"version"`
}

// Addon returns the addon with the given name.
func (s *Service) Addon(name string) (Addon, bool) {
	for _, a := range s.Addons {
		if a.Name == name {
			return a, true
		}
	}
	return Addon{}, false
}

// AvailableOn reports whether date is bookable. An empty calendar means any date.
func (s *Service) AvailableOn(date string) bool {
	if len(s.AvailabilityCalendar) == 0 {
		return true
	}
	for _, d := range s.AvailabilityCalendar {
		if d == date {
			return true
		}
	}
	return false
}

// ServiceFilter narrows public service queries.
type ServiceFilter struct {
	Category string
	City     string
	Page     Page
}

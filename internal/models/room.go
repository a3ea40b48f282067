package models

import "time"

const (
	RoomAvailable = "available"
	RoomFull      = "full"
)

type Room struct {
	ID            int64     `json:"id"`
	ListingID     int64     `json:"listing_id"`
	RoomNumber    string    `json:"room_number"`
	RoomType      string    `json:"room_type,omitempty"` // single, double, dormitory...
	Rent          float64   `json:"rent"`
	TotalBeds     int       `json:"total_beds"`
	AvailableBeds int       `json:"available_beds"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int64     `json:"version"`
}

// RoomStatusFor derives the room status from its free bed count.
func RoomStatusFor(availableBeds int) string {
	if availableBeds == 0 {
		return RoomFull
	}
	return RoomAvailable
}

package models

import "time"

const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

type ProviderRequest struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	ServiceCategory string     `json:"service_category"`
	Documents       []string   `json:"documents"`
	Status          string     `json:"status"`
	AdminComment    string     `json:"admin_comment,omitempty"`
	ReviewedBy      *int64     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Version         int64      `json:"version"`
}

package models

import "time"

type Role string

const (
	RoleTenant          Role = "tenant"
	RoleOwner           Role = "owner"
	RoleAgent           Role = "agent"
	RoleServiceProvider Role = "service_provider"
	RoleAdmin           Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleTenant, RoleOwner, RoleAgent, RoleServiceProvider, RoleAdmin:
		return true
	}
	return false
}

const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
)

type User struct {
	ID                 int64     `json:"id"`
	Phone              string    `json:"phone"`
	Email              string    `json:"email,omitempty"`
	Name               string    `json:"name,omitempty"`
	Role               Role      `json:"role"`
	VerificationStatus string    `json:"verification_status"` // pending, verified, rejected
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Version            int64     `json:"version"`
}

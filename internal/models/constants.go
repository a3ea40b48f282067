package models

const (
	// DefaultPageSize is used when a caller does not ask for a page size.
	DefaultPageSize = 20

	// MaxPageSize caps list queries.
	MaxPageSize = 100

	// EarthRadiusKm converts kilometres into the angular radius used by
	// spherical containment queries.
	EarthRadiusKm = 6378.1

	MinRating = 1
	MaxRating = 5
)

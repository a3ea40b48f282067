package service

import (
	"context"
	"math"

	"monositi/internal/domain"
	"monositi/internal/geo"
	"monositi/internal/models"

	"github.com/rs/zerolog"
)

// NearbyResult is the answer to a radius search. Count always matches the
// number of items.
type NearbyResult struct {
	Items []*models.Listing `json:"items"`
	Count int               `json:"count"`
}

// SearchService answers "listings within radius of a point" queries. The
// primary locator is the geo index; the fallback is consulted when the index
// is unavailable.
type SearchService struct {
	primary  domain.ListingLocator
	fallback domain.ListingLocator
	listings domain.ListingRepository
	logger   *zerolog.Logger
}

func NewSearchService(primary, fallback domain.ListingLocator, listings domain.ListingRepository, logger *zerolog.Logger) *SearchService {
	return &SearchService{primary: primary, fallback: fallback, listings: listings, logger: logger}
}

// Nearby returns discoverable listings within radiusKm of (lat, lng).
// Ordering is whatever the locator returns.
func (s *SearchService) Nearby(ctx context.Context, lat, lng, radiusKm float64) (*NearbyResult, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return nil, domain.Validation("lat must be between -90 and 90")
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return nil, domain.Validation("lng must be between -180 and 180")
	}
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) || radiusKm <= 0 {
		return nil, domain.Validation("radius must be a positive number of kilometres")
	}

	angular := geo.AngularRadius(radiusKm)
	ids, err := s.locate(ctx, lat, lng, angular)
	if err != nil {
		return nil, domain.StoreError(err, "listing")
	}

	listings, err := s.listings.GetListingsByIDs(ctx, ids)
	if err != nil {
		return nil, domain.StoreError(err, "listing")
	}

	// The index may lag behind the store, so recheck against current state.
	items := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if !l.Discoverable() || !geo.Within(lat, lng, angular, l.Latitude, l.Longitude) {
			continue
		}
		items = append(items, l)
	}
	return &NearbyResult{Items: items, Count: len(items)}, nil
}

func (s *SearchService) locate(ctx context.Context, lat, lng, angular float64) ([]int64, error) {
	if s.primary == nil {
		return s.fallback.NearbyListingIDs(ctx, lat, lng, angular)
	}
	ids, err := s.primary.NearbyListingIDs(ctx, lat, lng, angular)
	if err == nil || s.fallback == nil {
		return ids, err
	}
	s.logger.Warn().Err(err).Msg("Geo index unavailable, falling back to store scan")
	return s.fallback.NearbyListingIDs(ctx, lat, lng, angular)
}

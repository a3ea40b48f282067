package service

import (
	"context"
	"math"

	"monositi/internal/domain"

	"github.com/rs/zerolog"
)

// RatingService recomputes a service's mean customer rating from scratch.
// Booking volume per service is small, so a full pass stays cheap; a running
// average would be the next step if that changes.
type RatingService struct {
	bookings domain.BookingRepository
	services domain.ServiceRepository
	logger   *zerolog.Logger
}

func NewRatingService(bookings domain.BookingRepository, services domain.ServiceRepository, logger *zerolog.Logger) *RatingService {
	return &RatingService{bookings: bookings, services: services, logger: logger}
}

// Recompute stores the mean of every customer rating of the service, rounded
// to one decimal place. A service without ratings scores 0.
func (s *RatingService) Recompute(ctx context.Context, serviceID int64) (float64, error) {
	scores, err := s.bookings.ListCustomerRatings(ctx, serviceID)
	if err != nil {
		return 0, domain.StoreError(err, "booking")
	}

	mean := MeanRating(scores)
	if err := s.services.SetServiceRating(ctx, serviceID, mean, len(scores)); err != nil {
		return 0, domain.StoreError(err, "service")
	}

	s.logger.Debug().Int64("service_id", serviceID).Float64("rating", mean).Int("count", len(scores)).Msg("Service rating recomputed")
	return mean, nil
}

func MeanRating(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, v := range scores {
		sum += v
	}
	return math.Round(float64(sum)/float64(len(scores))*10) / 10
}

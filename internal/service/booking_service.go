package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"monositi/internal/domain"
	"monositi/internal/events"
	"monositi/internal/metrics"
	"monositi/internal/models"
	"monositi/internal/policy"

	"github.com/rs/zerolog"
)

type BookingInput struct {
	ServiceID     int64    `json:"service_id" validate:"required,gt=0"`
	ScheduledDate string   `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	Addons        []string `json:"addons" validate:"max=50,dive,required"`
	Notes         string   `json:"notes" validate:"max=2000"`
}

type RatingInput struct {
	Score  int    `json:"score" validate:"gte=1,lte=5"`
	Review string `json:"review" validate:"max=2000"`
}

// Booking list perspectives accepted by ListMine.
const (
	AsCustomer = "customer"
	AsProvider = "provider"
)

// BookingService owns the booking state machine. Customer ratings feed the
// service's aggregate through the RatingAggregator.
type BookingService struct {
	bookings   domain.BookingRepository
	services   domain.ServiceRepository
	aggregator domain.RatingAggregator
	eventBus   domain.EventPublisher
	policy     policy.BookingPolicy
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewBookingService(bookings domain.BookingRepository, services domain.ServiceRepository, aggregator domain.RatingAggregator, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		bookings:   bookings,
		services:   services,
		aggregator: aggregator,
		eventBus:   eventBus,
		logger:     logger,
		now:        time.Now,
	}
}

// Create books a service for the actor. The provider is copied from the
// service so later checks need no join.
func (s *BookingService) Create(ctx context.Context, actor policy.Actor, in BookingInput) (*models.ServiceBooking, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	service, err := s.services.GetService(ctx, in.ServiceID)
	if err != nil {
		return nil, domain.StoreError(err, "service")
	}
	if !service.ActiveStatus {
		return nil, domain.NotFound("service not found")
	}
	if service.ProviderID == actor.ID {
		return nil, domain.ErrSelfBooking
	}

	date, _ := time.Parse(models.DateLayout, in.ScheduledDate)
	today := s.now().UTC().Truncate(24 * time.Hour)
	if date.Before(today) {
		return nil, domain.Validation("scheduled_date must not be in the past")
	}
	if !service.AvailableOn(in.ScheduledDate) {
		return nil, domain.Validation("service is not available on %s", in.ScheduledDate)
	}

	total := service.BasePrice
	addons := make([]models.Addon, 0, len(in.Addons))
	seen := make(map[string]struct{}, len(in.Addons))
	for _, name := range in.Addons {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; dup {
			continue
		}
		addon, ok := service.Addon(name)
		if !ok {
			return nil, domain.Validation("service has no addon %q", name)
		}
		seen[name] = struct{}{}
		addons = append(addons, addon)
		total += addon.Price
	}

	booking := &models.ServiceBooking{
		ServiceID:     service.ID,
		CustomerID:    actor.ID,
		ProviderID:    service.ProviderID,
		ScheduledDate: in.ScheduledDate,
		Addons:        addons,
		TotalPrice:    total,
		Notes:         in.Notes,
	}
	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		return nil, domain.StoreError(err, "booking")
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("service_id", service.ID).
		Int64("customer_id", actor.ID).
		Str("date", booking.ScheduledDate).
		Float64("total_price", total).
		Msg("Booking created")
	publishEvent(s.logger, s.eventBus, events.EventBookingCreated, bookingPayload(booking, actor.ID))
	return booking, nil
}

// Transition applies action to the booking. The capability check comes before
// the edge check, so the wrong party gets forbidden rather than a state error.
func (s *BookingService) Transition(ctx context.Context, actor policy.Actor, id int64, action models.BookingAction) (*models.ServiceBooking, error) {
	capability := policy.BookingCapability(action)
	if capability == "" {
		return nil, domain.Validation("unknown booking action %q", action)
	}
	booking, err := s.authorize(ctx, actor, id, capability)
	if err != nil {
		return nil, err
	}

	next, ok := models.NextBookingStatus(booking.Status, action)
	if !ok {
		return nil, domain.InvalidTransition("cannot %s a %s booking", action, booking.Status)
	}
	if err := s.bookings.UpdateBookingStatus(ctx, booking.ID, booking.Version, next); err != nil {
		return nil, domain.StoreError(err, "booking")
	}

	from := booking.Status
	booking.Status = next
	booking.Version++
	booking.UpdatedAt = s.now().UTC()

	metrics.IncBookingTransition(string(action))
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("actor_id", actor.ID).
		Str("action", string(action)).
		Str("from", from).
		Str("to", next).
		Msg("Booking transitioned")
	publishEvent(s.logger, s.eventBus, events.BookingTransitionEvent(string(action)), bookingPayload(booking, actor.ID))
	return booking, nil
}

// Rate records the actor's rating of a completed booking. Each party rates at
// most once; a customer rating refreshes the service aggregate.
func (s *BookingService) Rate(ctx context.Context, actor policy.Actor, id int64, in RatingInput) (*models.ServiceBooking, error) {
	booking, err := s.authorize(ctx, actor, id, policy.BookingRate)
	if err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if booking.Status != models.BookingCompleted {
		return nil, domain.InvalidTransition("only completed bookings can be rated")
	}

	party := models.PartyProvider
	existing := booking.ProviderRating
	if actor.ID == booking.CustomerID {
		party = models.PartyCustomer
		existing = booking.CustomerRating
	}
	if existing != nil {
		return nil, domain.Conflict("you have already rated this booking")
	}

	review := strings.TrimSpace(in.Review)
	if err := s.bookings.SetBookingRating(ctx, booking.ID, party, in.Score, review); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.Conflict("you have already rated this booking")
		}
		return nil, domain.StoreError(err, "booking")
	}

	score := in.Score
	// Reload so the result carries the other party's rating if it landed meanwhile.
	if fresh, err := s.bookings.GetBooking(ctx, booking.ID); err == nil {
		booking = fresh
	} else if party == models.PartyCustomer {
		booking.CustomerRating = &score
		booking.CustomerReview = review
	} else {
		booking.ProviderRating = &score
		booking.ProviderReview = review
	}

	s.logger.Info().Int64("booking_id", booking.ID).Str("party", party).Int("score", score).Msg("Booking rated")

	if party == models.PartyCustomer && s.aggregator != nil {
		// The rating is already stored; a failed recompute is repaired by the next one.
		if _, err := s.aggregator.Recompute(ctx, booking.ServiceID); err != nil {
			s.logger.Error().Err(err).Int64("service_id", booking.ServiceID).Msg("Failed to recompute service rating")
		}
	}

	payload := bookingPayload(booking, actor.ID)
	payload.Rating = score
	publishEvent(s.logger, s.eventBus, events.EventBookingRated, payload)
	return booking, nil
}

func (s *BookingService) Get(ctx context.Context, actor policy.Actor, id int64) (*models.ServiceBooking, error) {
	return s.authorize(ctx, actor, id, policy.BookingView)
}

// ListMine returns the actor's bookings as customer or as provider.
func (s *BookingService) ListMine(ctx context.Context, actor policy.Actor, as string) ([]*models.ServiceBooking, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	var (
		items []*models.ServiceBooking
		err   error
	)
	switch as {
	case "", AsCustomer:
		items, err = s.bookings.ListBookingsByCustomer(ctx, actor.ID)
	case AsProvider:
		items, err = s.bookings.ListBookingsByProvider(ctx, actor.ID)
	default:
		return nil, domain.Validation("as must be one of [%s %s]", AsCustomer, AsProvider)
	}
	if err != nil {
		return nil, domain.StoreError(err, "booking")
	}
	if items == nil {
		items = []*models.ServiceBooking{}
	}
	return items, nil
}

// All returns every booking for admin exports.
func (s *BookingService) All(ctx context.Context, actor policy.Actor) ([]*models.ServiceBooking, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	items, err := s.bookings.AllBookings(ctx)
	if err != nil {
		return nil, domain.StoreError(err, "booking")
	}
	return items, nil
}

func (s *BookingService) authorize(ctx context.Context, actor policy.Actor, id int64, action policy.Action) (*models.ServiceBooking, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	booking, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, domain.StoreError(err, "booking")
	}
	if err := policy.Require(s.policy.AllowedActions(actor, booking), action); err != nil {
		return nil, err
	}
	return booking, nil
}

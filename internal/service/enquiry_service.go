package service

import (
	"context"
	"strings"

	"monositi/internal/domain"
	"monositi/internal/events"
	"monositi/internal/models"
	"monositi/internal/policy"

	"github.com/rs/zerolog"
)

type EnquiryInput struct {
	TargetType string `json:"target_type" validate:"required,oneof=listing service"`
	TargetID   int64  `json:"target_id" validate:"required,gt=0"`
	Name       string `json:"name" validate:"max=100"`
	Phone      string `json:"phone" validate:"max=20"`
	Email      string `json:"email" validate:"omitempty,email"`
	Message    string `json:"message" validate:"required,max=2000"`
}

// EnquiryService captures leads against listings and services.
type EnquiryService struct {
	enquiries domain.EnquiryRepository
	listings  domain.ListingRepository
	services  domain.ServiceRepository
	users     domain.UserRepository
	eventBus  domain.EventPublisher
	policy    policy.EnquiryPolicy
	logger    *zerolog.Logger
}

func NewEnquiryService(enquiries domain.EnquiryRepository, listings domain.ListingRepository, services domain.ServiceRepository, users domain.UserRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *EnquiryService {
	return &EnquiryService{
		enquiries: enquiries,
		listings:  listings,
		services:  services,
		users:     users,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// Create records an enquiry. Anonymous callers must leave a name and phone;
// authenticated callers default to their profile. A listing enquiry also
// counts as a lead on the listing.
func (s *EnquiryService) Create(ctx context.Context, actor policy.Actor, in EnquiryInput) (*models.Enquiry, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	enquiry := &models.Enquiry{
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Name:       strings.TrimSpace(in.Name),
		Phone:      strings.TrimSpace(in.Phone),
		Email:      strings.TrimSpace(in.Email),
		Message:    strings.TrimSpace(in.Message),
	}

	if actor.Authenticated() {
		user, err := s.users.GetUserByID(ctx, actor.ID)
		if err != nil {
			return nil, domain.StoreError(err, "user")
		}
		userID := user.ID
		enquiry.UserID = &userID
		if enquiry.Name == "" {
			enquiry.Name = user.Name
		}
		if enquiry.Phone == "" {
			enquiry.Phone = user.Phone
		}
		if enquiry.Email == "" {
			enquiry.Email = user.Email
		}
	}
	if enquiry.Phone == "" {
		return nil, domain.Validation("phone is required")
	}
	phone, err := NormalizePhone(enquiry.Phone)
	if err != nil {
		return nil, err
	}
	enquiry.Phone = phone
	if enquiry.Name == "" {
		return nil, domain.Validation("name is required")
	}

	ownerID, err := s.targetOwner(ctx, actor, in.TargetType, in.TargetID)
	if err != nil {
		return nil, err
	}
	if actor.Authenticated() && ownerID == actor.ID {
		return nil, domain.Validation("you cannot enquire about your own %s", in.TargetType)
	}
	enquiry.OwnerID = ownerID

	if err := s.enquiries.CreateEnquiry(ctx, enquiry); err != nil {
		return nil, domain.StoreError(err, in.TargetType)
	}

	s.logger.Info().
		Int64("enquiry_id", enquiry.ID).
		Str("target_type", enquiry.TargetType).
		Int64("target_id", enquiry.TargetID).
		Msg("Enquiry created")
	publishEvent(s.logger, s.eventBus, events.EventEnquiryCreated, events.EnquiryEventPayload{
		EnquiryID:  enquiry.ID,
		TargetType: enquiry.TargetType,
		TargetID:   enquiry.TargetID,
		OwnerID:    enquiry.OwnerID,
		Name:       enquiry.Name,
	})
	return enquiry, nil
}

// UpdateStatus moves an enquiry forward: new to contacted or closed, and
// contacted to closed.
func (s *EnquiryService) UpdateStatus(ctx context.Context, actor policy.Actor, id int64, status string) (*models.Enquiry, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	enquiry, err := s.enquiries.GetEnquiry(ctx, id)
	if err != nil {
		return nil, domain.StoreError(err, "enquiry")
	}
	allowed := s.policy.AllowedActions(actor, enquiry)
	if !allowed.Has(policy.EnquiryView) {
		return nil, domain.NotFound("enquiry not found")
	}
	if err := policy.Require(allowed, policy.EnquiryUpdateStatus); err != nil {
		return nil, err
	}
	if !models.CanTransitionEnquiry(enquiry.Status, status) {
		return nil, domain.InvalidTransition("cannot move enquiry from %s to %s", enquiry.Status, status)
	}

	if err := s.enquiries.UpdateEnquiryStatus(ctx, enquiry.ID, enquiry.Version, status); err != nil {
		return nil, domain.StoreError(err, "enquiry")
	}
	enquiry.Status = status
	enquiry.Version++

	s.logger.Info().Int64("enquiry_id", id).Int64("actor_id", actor.ID).Str("status", status).Msg("Enquiry status changed")
	return enquiry, nil
}

// Inbox lists enquiries addressed to the actor, optionally by status.
func (s *EnquiryService) Inbox(ctx context.Context, actor policy.Actor, status string) ([]*models.Enquiry, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	switch status {
	case "", models.EnquiryNew, models.EnquiryContacted, models.EnquiryClosed:
	default:
		return nil, domain.Validation("unknown enquiry status %q", status)
	}
	items, err := s.enquiries.ListEnquiriesByOwner(ctx, actor.ID, status)
	if err != nil {
		return nil, domain.StoreError(err, "enquiry")
	}
	if items == nil {
		items = []*models.Enquiry{}
	}
	return items, nil
}

// targetOwner resolves the owner of a target the actor can see.
func (s *EnquiryService) targetOwner(ctx context.Context, actor policy.Actor, targetType string, targetID int64) (int64, error) {
	switch targetType {
	case models.TargetListing:
		listing, err := s.listings.GetListing(ctx, targetID)
		if err != nil {
			return 0, domain.StoreError(err, "listing")
		}
		if !(policy.ListingPolicy{}).AllowedActions(actor, listing).Has(policy.ListingView) {
			return 0, domain.NotFound("listing not found")
		}
		return listing.OwnerID, nil
	case models.TargetService:
		service, err := s.services.GetService(ctx, targetID)
		if err != nil {
			return 0, domain.StoreError(err, "service")
		}
		if !(policy.ServicePolicy{}).AllowedActions(actor, service).Has(policy.ServiceView) {
			return 0, domain.NotFound("service not found")
		}
		return service.ProviderID, nil
	}
	return 0, domain.Validation("unknown target type %q", targetType)
}

package service

import (
	"context"
	"errors"
	"strings"

	"monositi/internal/domain"
	"monositi/internal/events"
	"monositi/internal/models"
	"monositi/internal/policy"

	"github.com/rs/zerolog"
)

type ProviderRequestInput struct {
	ServiceCategory string   `json:"service_category" validate:"required,max=100"`
	Documents       []string `json:"documents" validate:"max=20,dive,url"`
}

// OnboardingService runs the approval workflow that promotes tenants to
// service providers.
type OnboardingService struct {
	requests domain.ProviderRequestRepository
	users    domain.UserRepository
	eventBus domain.EventPublisher
	policy   policy.ProviderRequestPolicy
	logger   *zerolog.Logger
}

func NewOnboardingService(requests domain.ProviderRequestRepository, users domain.UserRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *OnboardingService {
	return &OnboardingService{requests: requests, users: users, eventBus: eventBus, logger: logger}
}

// Submit files a request for the actor. A user holds at most one pending
// request and providers cannot apply again.
func (s *OnboardingService) Submit(ctx context.Context, actor policy.Actor, in ProviderRequestInput) (*models.ProviderRequest, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, domain.StoreError(err, "user")
	}
	switch user.Role {
	case models.RoleTenant:
	case models.RoleServiceProvider:
		return nil, domain.Conflict("you are already a service provider")
	default:
		return nil, domain.Forbidden("role %s cannot apply to become a provider", user.Role)
	}

	if _, err := s.requests.GetPendingProviderRequest(ctx, user.ID); err == nil {
		return nil, domain.Conflict("you already have a pending provider request")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.StoreError(err, "provider request")
	}

	req := &models.ProviderRequest{
		UserID:          user.ID,
		ServiceCategory: strings.TrimSpace(in.ServiceCategory),
		Documents:       in.Documents,
	}
	if err := s.requests.CreateProviderRequest(ctx, req); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.Conflict("you already have a pending provider request")
		}
		return nil, domain.StoreError(err, "provider request")
	}

	s.logger.Info().Int64("request_id", req.ID).Int64("user_id", user.ID).Str("category", req.ServiceCategory).Msg("Provider request submitted")
	publishEvent(s.logger, s.eventBus, events.EventRequestSubmitted, events.ProviderRequestEventPayload{
		RequestID:       req.ID,
		UserID:          req.UserID,
		ServiceCategory: req.ServiceCategory,
		Status:          req.Status,
	})
	return req, nil
}

// Decide resolves a pending request exactly once. Approval promotes the user
// in the same unit of work.
func (s *OnboardingService) Decide(ctx context.Context, actor policy.Actor, id int64, approve bool, comment string) (*models.ProviderRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req, err := s.requests.GetProviderRequest(ctx, id)
	if err != nil {
		return nil, domain.StoreError(err, "provider request")
	}
	if err := policy.Require(s.policy.AllowedActions(actor, req), policy.RequestDecide); err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		return nil, domain.Conflict("provider request is already %s", req.Status)
	}

	reviewer := actor.ID
	req.Status = models.RequestRejected
	if approve {
		req.Status = models.RequestApproved
	}
	req.AdminComment = strings.TrimSpace(comment)
	req.ReviewedBy = &reviewer

	if err := s.requests.ResolveProviderRequest(ctx, req, approve); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return nil, domain.Conflict("provider request was already resolved")
		}
		return nil, domain.StoreError(err, "provider request")
	}

	s.logger.Info().
		Int64("request_id", req.ID).
		Int64("user_id", req.UserID).
		Int64("admin_id", actor.ID).
		Str("status", req.Status).
		Msg("Provider request decided")
	publishEvent(s.logger, s.eventBus, events.EventRequestDecided, events.ProviderRequestEventPayload{
		RequestID:       req.ID,
		UserID:          req.UserID,
		ServiceCategory: req.ServiceCategory,
		Status:          req.Status,
		ReviewedBy:      reviewer,
	})
	return req, nil
}

// List returns requests for admins, filtered by status when given.
func (s *OnboardingService) List(ctx context.Context, actor policy.Actor, status string) ([]*models.ProviderRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	switch status {
	case "", models.RequestPending, models.RequestApproved, models.RequestRejected:
	default:
		return nil, domain.Validation("unknown request status %q", status)
	}
	items, err := s.requests.ListProviderRequests(ctx, status)
	if err != nil {
		return nil, domain.StoreError(err, "provider request")
	}
	if items == nil {
		items = []*models.ProviderRequest{}
	}
	return items, nil
}

func (s *OnboardingService) Pending(ctx context.Context, actor policy.Actor) ([]*models.ProviderRequest, error) {
	return s.List(ctx, actor, models.RequestPending)
}

func (s *OnboardingService) Mine(ctx context.Context, actor policy.Actor) ([]*models.ProviderRequest, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	items, err := s.requests.ListProviderRequestsByUser(ctx, actor.ID)
	if err != nil {
		return nil, domain.StoreError(err, "provider request")
	}
	if items == nil {
		items = []*models.ProviderRequest{}
	}
	return items, nil
}

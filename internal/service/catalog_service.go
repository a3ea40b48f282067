package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"monositi/internal/domain"
	"monositi/internal/models"
	"monositi/internal/policy"

	"github.com/rs/zerolog"
)

const maxCalendarDays = 366

type AddonInput struct {
	Name  string  `json:"name" validate:"required,max=100"`
	Price float64 `json:"price" validate:"gte=0"`
}

type ServiceInput struct {
	Name        string       `json:"name" validate:"required,max=200"`
	Category    string       `json:"category" validate:"required,max=100"`
	Description string       `json:"description" validate:"max=5000"`
	City        string       `json:"city" validate:"max=100"`
	BasePrice   float64      `json:"base_price" validate:"gt=0"`
	Addons      []AddonInput `json:"addons" validate:"max=50,dive"`
	Images      []string     `json:"images" validate:"max=30,dive,url"`
}

// ServiceUpdate carries a partial edit; nil fields are left as they are.
type ServiceUpdate struct {
	Name        *string       `json:"name" validate:"omitempty,min=1,max=200"`
	Category    *string       `json:"category" validate:"omitempty,min=1,max=100"`
	Description *string       `json:"description" validate:"omitempty,max=5000"`
	City        *string       `json:"city" validate:"omitempty,max=100"`
	BasePrice   *float64      `json:"base_price" validate:"omitempty,gt=0"`
	Addons      *[]AddonInput `json:"addons" validate:"omitempty,max=50,dive"`
	Images      *[]string     `json:"images" validate:"omitempty,max=30,dive,url"`
}

// CatalogService owns service publication, verification and the addon and
// availability sub-collections.
type CatalogService struct {
	services domain.ServiceRepository
	users    domain.UserRepository
	policy   policy.ServicePolicy
	logger   *zerolog.Logger
}

func NewCatalogService(services domain.ServiceRepository, users domain.UserRepository, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{services: services, users: users, logger: logger}
}

// Create requires the actor to already hold the service_provider role.
// Promotion happens through onboarding or CreateAsFirstService.
func (s *CatalogService) Create(ctx context.Context, actor policy.Actor, in ServiceInput) (*models.Service, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	user, err := s.currentUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleServiceProvider {
		return nil, domain.Forbidden("only service providers can create services")
	}

	service, err := buildService(actor.ID, in)
	if err != nil {
		return nil, err
	}
	if err := s.services.CreateService(ctx, service); err != nil {
		return nil, domain.StoreError(err, "service")
	}

	s.logger.Info().Int64("service_id", service.ID).Int64("provider_id", actor.ID).Msg("Service created")
	return service, nil
}

// CreateAsFirstService is the onboarding shortcut: a tenant without services
// becomes a service provider and gets the service in one unit of work. Actors
// who are already providers take the regular path.
func (s *CatalogService) CreateAsFirstService(ctx context.Context, actor policy.Actor, in ServiceInput) (*models.Service, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	user, err := s.currentUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	switch user.Role {
	case models.RoleServiceProvider:
		return s.Create(ctx, actor, in)
	case models.RoleTenant:
	default:
		return nil, domain.Forbidden("role %s cannot become a service provider", user.Role)
	}

	service, err := buildService(actor.ID, in)
	if err != nil {
		return nil, err
	}
	if err := s.services.CreateServiceWithPromotion(ctx, service); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return nil, domain.Conflict("provider promotion could not be applied, retry")
		}
		return nil, domain.StoreError(err, "service")
	}

	s.logger.Info().Int64("service_id", service.ID).Int64("user_id", actor.ID).Msg("Tenant promoted to service provider with first service")
	return service, nil
}

func (s *CatalogService) Update(ctx context.Context, actor policy.Actor, id int64, in ServiceUpdate) (*models.Service, error) {
	service, err := s.authorize(ctx, actor, id, policy.ServiceUpdate)
	if err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if in.Name != nil {
		service.Name = strings.TrimSpace(*in.Name)
	}
	if in.Category != nil {
		service.Category = strings.TrimSpace(*in.Category)
	}
	if in.Description != nil {
		service.Description = *in.Description
	}
	if in.City != nil {
		service.City = strings.TrimSpace(*in.City)
	}
	if in.BasePrice != nil {
		service.BasePrice = *in.BasePrice
	}
	if in.Addons != nil {
		addons, err := buildAddons(*in.Addons)
		if err != nil {
			return nil, err
		}
		service.Addons = addons
	}
	if in.Images != nil {
		service.Images = *in.Images
	}

	if err := s.services.UpdateService(ctx, service); err != nil {
		return nil, domain.StoreError(err, "service")
	}
	return service, nil
}

// ToggleActive flips the owner-controlled publication flag. Verification is
// not affected.
func (s *CatalogService) ToggleActive(ctx context.Context, actor policy.Actor, id int64) (*models.Service, error) {
	service, err := s.authorize(ctx, actor, id, policy.ServiceToggleActive)
	if err != nil {
		return nil, err
	}
	service.ActiveStatus = !service.ActiveStatus
	if err := s.services.UpdateService(ctx, service); err != nil {
		return nil, domain.StoreError(err, "service")
	}
	s.logger.Info().Int64("service_id", id).Bool("active", service.ActiveStatus).Msg("Service activity toggled")
	return service, nil
}

// SetAvailability replaces the calendar. Dates are YYYY-MM-DD, deduplicated
// and sorted. An empty calendar means every date is bookable.
func (s *CatalogService) SetAvailability(ctx context.Context, actor policy.Actor, id int64, dates []string) (*models.Service, error) {
	service, err := s.authorize(ctx, actor, id, policy.ServiceSetAvailability)
	if err != nil {
		return nil, err
	}
	if len(dates) > maxCalendarDays {
		return nil, domain.Validation("availability calendar can hold at most %d dates", maxCalendarDays)
	}

	seen := make(map[string]struct{}, len(dates))
	calendar := make([]string, 0, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			return nil, domain.Validation("invalid date %q, expected YYYY-MM-DD", d)
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		calendar = append(calendar, d)
	}
	sort.Strings(calendar)

	service.AvailabilityCalendar = calendar
	if err := s.services.UpdateService(ctx, service); err != nil {
		return nil, domain.StoreError(err, "service")
	}
	return service, nil
}

func (s *CatalogService) SetVerification(ctx context.Context, actor policy.Actor, id int64, verified bool) (*models.Service, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	service, err := s.authorize(ctx, actor, id, policy.ServiceVerify)
	if err != nil {
		return nil, err
	}
	if service.MonositiVerified == verified {
		return service, nil
	}
	service.MonositiVerified = verified
	if err := s.services.UpdateService(ctx, service); err != nil {
		return nil, domain.StoreError(err, "service")
	}
	s.logger.Info().Int64("service_id", id).Int64("admin_id", actor.ID).Bool("verified", verified).Msg("Service verification changed")
	return service, nil
}

func (s *CatalogService) Get(ctx context.Context, actor policy.Actor, id int64) (*models.Service, error) {
	return s.authorize(ctx, actor, id, policy.ServiceView)
}

// List returns active, verified services.
func (s *CatalogService) List(ctx context.Context, filter models.ServiceFilter) (*models.PageResult[*models.Service], error) {
	filter.Page = filter.Page.Normalize()
	items, total, err := s.services.ListServices(ctx, filter)
	if err != nil {
		return nil, domain.StoreError(err, "service")
	}
	if items == nil {
		items = []*models.Service{}
	}
	return &models.PageResult[*models.Service]{
		Items: items,
		Total: total,
		Page:  filter.Page.Number,
		Limit: filter.Page.Size,
	}, nil
}

func (s *CatalogService) Mine(ctx context.Context, actor policy.Actor) ([]*models.Service, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	items, err := s.services.ListServicesByProvider(ctx, actor.ID)
	if err != nil {
		return nil, domain.StoreError(err, "service")
	}
	if items == nil {
		items = []*models.Service{}
	}
	return items, nil
}

// currentUser re-reads the actor so role checks see promotions made after the
// session was issued.
func (s *CatalogService) currentUser(ctx context.Context, actor policy.Actor) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, domain.StoreError(err, "user")
	}
	return user, nil
}

func (s *CatalogService) authorize(ctx context.Context, actor policy.Actor, id int64, action policy.Action) (*models.Service, error) {
	service, err := s.services.GetService(ctx, id)
	if err != nil {
		return nil, domain.StoreError(err, "service")
	}
	allowed := s.policy.AllowedActions(actor, service)
	if !allowed.Has(policy.ServiceView) {
		return nil, domain.NotFound("service not found")
	}
	if err := policy.Require(allowed, action); err != nil {
		if !actor.Authenticated() {
			return nil, domain.Unauthenticated("authentication required")
		}
		return nil, err
	}
	return service, nil
}

func buildService(providerID int64, in ServiceInput) (*models.Service, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	addons, err := buildAddons(in.Addons)
	if err != nil {
		return nil, err
	}
	return &models.Service{
		ProviderID:   providerID,
		Name:         strings.TrimSpace(in.Name),
		Category:     strings.TrimSpace(in.Category),
		Description:  in.Description,
		City:         strings.TrimSpace(in.City),
		BasePrice:    in.BasePrice,
		Addons:       addons,
		Images:       in.Images,
		ActiveStatus: true,
	}, nil
}

func buildAddons(in []AddonInput) ([]models.Addon, error) {
	addons := make([]models.Addon, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return nil, domain.Validation("addon name is required")
		}
		if a.Price < 0 {
			return nil, domain.Validation("addon %q price must not be negative", name)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, domain.Validation("duplicate addon %q", name)
		}
		seen[key] = struct{}{}
		addons = append(addons, models.Addon{Name: name, Price: a.Price})
	}
	return addons, nil
}

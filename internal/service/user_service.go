package service

import (
	"context"

	"monositi/internal/domain"
	"monositi/internal/models"
	"monositi/internal/policy"

	"github.com/rs/zerolog"
)

// UserService covers the admin side of user management. Users are never
// deleted, only deactivated.
type UserService struct {
	repo   domain.UserRepository
	logger *zerolog.Logger
}

func NewUserService(repo domain.UserRepository, logger *zerolog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, domain.StoreError(err, "user")
	}
	return user, nil
}

func (s *UserService) SetRole(ctx context.Context, actor policy.Actor, userID int64, role models.Role) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, domain.Validation("unknown role %q", role)
	}
	if actor.ID == userID {
		return nil, domain.Forbidden("admins cannot change their own role")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}
	if err := s.repo.UpdateUserRole(ctx, user.ID, user.Version, role); err != nil {
		return nil, domain.StoreError(err, "user")
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Int64("admin_id", actor.ID).
		Str("from", string(user.Role)).
		Str("to", string(role)).
		Msg("User role changed")
	return s.Get(ctx, userID)
}

func (s *UserService) SetActive(ctx context.Context, actor policy.Actor, userID int64, active bool) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if actor.ID == userID {
		return nil, domain.Forbidden("admins cannot deactivate themselves")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsActive == active {
		return user, nil
	}
	if err := s.repo.SetUserActive(ctx, user.ID, user.Version, active); err != nil {
		return nil, domain.StoreError(err, "user")
	}

	s.logger.Info().Int64("user_id", user.ID).Int64("admin_id", actor.ID).Bool("active", active).Msg("User activity changed")
	return s.Get(ctx, userID)
}

func requireAdmin(actor policy.Actor) error {
	if !actor.Authenticated() {
		return domain.Unauthenticated("authentication required")
	}
	if !actor.IsAdmin() {
		return domain.Forbidden("admin role required")
	}
	return nil
}

func requireAuth(actor policy.Actor) error {
	if !actor.Authenticated() {
		return domain.Unauthenticated("authentication required")
	}
	return nil
}

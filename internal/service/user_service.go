package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/appointment-service/internal/domain"
	"github.com/spec-kit/appointment-service/internal/events"
	"github.com/spec-kit/appointment-service/internal/repository"
	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

// UserService backs the administration screens and the staff directory.
type UserService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository, dispatcher events.Dispatcher, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, dispatcher: dispatcher, logger: logger}
}

// ListUsers returns every directory entry.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

// ListStaff returns users holding Staff, used for assignment choices.
func (s *UserService) ListStaff(ctx context.Context) ([]domain.User, error) {
	staff, err := s.users.ListByRole(ctx, domain.RoleStaff)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return staff, nil
}

// SetRoles replaces the role set of a user. Duplicates are collapsed; unknown names are rejected.
func (s *UserService) SetRoles(ctx context.Context, actor domain.Caller, userID string, names []string) (*domain.User, error) {
	roles := make([]domain.Role, 0, len(names))
	seen := map[domain.Role]bool{}
	for _, name := range names {
		role, ok := domain.ParseRole(strings.TrimSpace(name))
		if !ok {
			return nil, apperrors.NewFieldErrors(map[string]string{"roles": "unknown role " + name})
		}
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}

	if err := s.users.SetRoles(ctx, userID, roles); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.NewUserEvent(events.EventUserRolesChanged, userID, actor.ID, time.Now().UTC(),
		events.UserRolesChangedPayload{Roles: roles}))
	return user, nil
}

// DeleteUser removes a user. Admins cannot delete themselves, and customers with bookings are kept.
func (s *UserService) DeleteUser(ctx context.Context, actor domain.Caller, userID string) error {
	if actor.ID == userID {
		return apperrors.NewConflict("you cannot delete your own account", nil)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return apperrors.NewNotFound("user", map[string]any{"id": userID})
		case errors.Is(err, repository.ErrCustomerHasAppointments):
			return apperrors.NewConflict("user has appointments as customer", map[string]any{"id": userID})
		default:
			return apperrors.NewInternalError(err)
		}
	}
	s.publish(ctx, events.NewUserEvent(events.EventUserDeleted, userID, actor.ID, time.Now().UTC(), nil))
	return nil
}

func (s *UserService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

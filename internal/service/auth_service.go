package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/appointment-service/internal/auth"
	"github.com/spec-kit/appointment-service/internal/config"
	"github.com/spec-kit/appointment-service/internal/domain"
	"github.com/spec-kit/appointment-service/internal/events"
	"github.com/spec-kit/appointment-service/internal/repository"
	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// RegisterInput is the self-service signup payload.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Session is an issued access token.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Register creates a Customer account and signs the user in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.TrimSpace(input.Email)

	fields := fieldErrors{}
	if fields.required("first_name", input.FirstName) {
		fields.maxLength("first_name", input.FirstName, MaxNameLength)
	}
	if fields.required("last_name", input.LastName) {
		fields.maxLength("last_name", input.LastName, MaxNameLength)
	}
	if fields.required("email", input.Email) {
		if _, err := mail.ParseAddress(input.Email); err != nil {
			fields.add("email", "must be a valid email address")
		}
	}
	validatePassword(fields, "password", input.Password)
	if len(fields) > 0 {
		return nil, apperrors.NewFieldErrors(fields)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		PasswordHash: hash,
		Roles:        []domain.Role{domain.RoleCustomer},
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperrors.NewFieldErrors(map[string]string{"email": "is already registered"})
		}
		return nil, apperrors.NewInternalError(err)
	}

	if s.dispatcher != nil {
		event := events.NewUserEvent(events.EventUserRegistered, user.ID, user.ID, time.Now().UTC(), nil)
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return s.issue(user)
}

// Login authenticates by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("stored password hash unusable", zap.String("user_id", user.ID), zap.Error(err))
		}
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

// ChangePassword verifies current password before updating to new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	fields := fieldErrors{}
	validatePassword(fields, "new_password", newPassword)
	if len(fields) > 0 {
		return apperrors.NewFieldErrors(fields)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized("user not found")
		}
		return apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewFieldErrors(map[string]string{"current_password": "is incorrect"})
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// EnsureAdmin makes sure the seed account exists and holds Admin.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.logger.Warn("admin seed skipped: SEED_ADMIN_EMAIL or SEED_ADMIN_PASSWORD not set")
		return nil
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.HasRole(domain.RoleAdmin) {
			return nil
		}
		roles := append(append([]domain.Role{}, existing.Roles...), domain.RoleAdmin)
		s.logger.Info("granting admin role to seed account", zap.String("email", email))
		return s.users.SetRoles(ctx, existing.ID, roles)
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	admin := &domain.User{
		FirstName:    "Admin",
		LastName:     "User",
		Email:        email,
		PasswordHash: hash,
		Roles:        []domain.Role{domain.RoleAdmin},
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return err
	}
	s.logger.Info("seeded admin account", zap.String("email", email), zap.String("user_id", admin.ID))
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Roles)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

func validatePassword(fields fieldErrors, field, password string) {
	if len(password) < MinPasswordLength {
		fields.add(field, "must be at least 6 characters")
	}
}

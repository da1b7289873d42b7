// Package users implements password login and back-office account management.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/internal/redact"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/repositories"
	"github.com/upb/imu-filing/services"
	"github.com/upb/imu-filing/services/audit"
	"github.com/upb/imu-filing/services/ratelimit"
	"github.com/upb/imu-filing/utils"
)

// TokenIssuer signs session tokens
type TokenIssuer interface {
	Issue(user *models.User) (string, time.Time, error)
}

// LoginLimiter throttles failed logins
type LoginLimiter interface {
	Check(ctx context.Context, email string) (*ratelimit.LoginCheckResult, error)
	Record(ctx context.Context, email, ip string, success bool) error
}

// LoginResult is returned on successful login
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// CreateUserRequest holds the fields of a new back-office account
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email,max=255"`
	Password string          `json:"password" validate:"required,password,max=72"`
	Role     models.UserRole `json:"role" validate:"required,oneof=admin operator customer"`
}

// UpdateUserRequest changes role and/or active flag; nil fields are left alone
type UpdateUserRequest struct {
	Role   *models.UserRole `json:"role,omitempty" validate:"omitempty,oneof=admin operator customer"`
	Active *bool            `json:"active,omitempty"`
}

// Service handles users and authentication
type Service struct {
	users   repositories.UserRepository
	limiter LoginLimiter
	tokens  TokenIssuer
	audit   audit.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new users Service
func NewService(users repositories.UserRepository, limiter LoginLimiter, tokens TokenIssuer, recorder audit.Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		users:   users,
		limiter: limiter,
		tokens:  tokens,
		audit:   recorder,
		logger:  logger,
		now:     time.Now,
	}
}

// Login checks the throttle and the password, then issues a session token
func (s *Service) Login(ctx context.Context, email, password string, meta audit.Meta) (*LoginResult, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, services.ErrInvalidCredentials
	}

	check, err := s.limiter.Check(ctx, email)
	if err != nil {
		return nil, services.WrapInternal("failed to check login throttle", err)
	}
	if !check.Allowed {
		s.audit.Record(meta, models.AuditActionLoginThrottled, models.ResourceSession, nil,
			map[string]interface{}{"email": email, "retry_at": check.RetryAt})
		s.logger.Warn("login throttled", zap.String("email", redact.Email(email)), zap.String("request_id", meta.RequestID))
		return nil, services.NewDomainError(services.ErrorTypeRateLimit, services.ErrTooManyLogins.Message, nil).
			WithDetail("retry_at", check.RetryAt.UTC().Format(time.RFC3339))
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapInternal("failed to load user", err)
	}

	if user == nil || user.CheckPassword(password) != nil {
		s.recordAttempt(ctx, email, meta, false)
		s.audit.Record(meta, models.AuditActionLoginFailed, models.ResourceSession, nil,
			map[string]interface{}{"email": email, "remaining": check.Remaining - 1})
		return nil, services.ErrInvalidCredentials
	}

	if !user.Active {
		s.recordAttempt(ctx, email, meta, false)
		s.audit.Record(meta, models.AuditActionLoginFailed, models.ResourceSession, &user.ID,
			map[string]interface{}{"email": email, "reason": "disabled"})
		return nil, services.ErrAccountDisabled
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, services.WrapInternal("failed to issue session token", err)
	}

	s.recordAttempt(ctx, email, meta, true)

	now := s.now()
	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err), zap.String("user_id", user.ID.String()))
	}

	meta.UserID = &user.ID
	s.audit.Record(meta, models.AuditActionLoginSucceeded, models.ResourceSession, &user.ID,
		map[string]interface{}{"email": email})
	s.logger.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("request_id", meta.RequestID))

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) recordAttempt(ctx context.Context, email string, meta audit.Meta, success bool) {
	if err := s.limiter.Record(ctx, email, meta.IPAddress, success); err != nil {
		s.logger.Error("failed to record login attempt", zap.Error(err), zap.String("request_id", meta.RequestID))
	}
}

// Logout records the end of a session. Tokens are stateless, so the cookie is cleared by the caller.
func (s *Service) Logout(ctx context.Context, meta audit.Meta) {
	s.audit.Record(meta, models.AuditActionLogout, models.ResourceSession, meta.UserID, nil)
}

// Get returns one user
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFound(services.ErrUserNotFound, id)
		}
		return nil, services.WrapInternal("failed to get user", err)
	}
	return user, nil
}

// List returns users matching filter
func (s *Service) List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	if filter.Role != nil && !filter.Role.IsValid() {
		return nil, 0, services.ErrInvalidRole
	}
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, services.WrapInternal("failed to list users", err)
	}
	return users, total, nil
}

// Create adds a back-office account
func (s *Service) Create(ctx context.Context, req CreateUserRequest, meta audit.Meta) (*models.User, error) {
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	if !req.Role.IsValid() {
		return nil, services.ErrInvalidRole
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		return nil, services.ErrInvalidEmail
	}

	user := models.NewUser(req.Email, req.Role)
	user.CreatedAt, user.UpdatedAt = s.now(), s.now()
	if err := user.SetPassword(req.Password); err != nil {
		return nil, services.WrapInternal("failed to hash password", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.ErrDuplicateEmail
		}
		return nil, services.WrapInternal("failed to create user", err)
	}

	s.audit.Record(meta, models.AuditActionUserCreated, models.ResourceUser, &user.ID,
		map[string]interface{}{"email": user.Email, "role": user.Role})
	s.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
		zap.String("request_id", meta.RequestID))

	return user, nil
}

// Update changes a user's role or active flag. Admins cannot demote or disable themselves.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateUserRequest, meta audit.Meta) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	self := meta.UserID != nil && *meta.UserID == id
	changes := map[string]interface{}{}

	if req.Role != nil && *req.Role != user.Role {
		if !req.Role.IsValid() {
			return nil, services.ErrInvalidRole
		}
		if self {
			return nil, services.ErrSelfModification
		}
		changes["role"] = map[string]interface{}{"from": user.Role, "to": *req.Role}
		user.Role = *req.Role
	}
	if req.Active != nil && *req.Active != user.Active {
		if self && !*req.Active {
			return nil, services.ErrSelfModification
		}
		changes["active"] = map[string]interface{}{"from": user.Active, "to": *req.Active}
		user.Active = *req.Active
	}

	if len(changes) == 0 {
		return user, nil
	}

	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFound(services.ErrUserNotFound, id)
		}
		return nil, services.WrapInternal("failed to update user", err)
	}

	action := models.AuditActionUserUpdated
	if _, ok := changes["role"]; ok {
		action = models.AuditActionUserRoleChanged
	}
	s.audit.Record(meta, action, models.ResourceUser, &user.ID, changes)

	return user, nil
}

// Delete removes a user. Admins cannot delete themselves.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, meta audit.Meta) error {
	if meta.UserID != nil && *meta.UserID == id {
		return services.ErrSelfModification
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.NewNotFound(services.ErrUserNotFound, id)
		}
		return services.WrapInternal("failed to delete user", err)
	}

	s.audit.Record(meta, models.AuditActionUserDeleted, models.ResourceUser, &id,
		map[string]interface{}{"email": user.Email, "role": user.Role})
	return nil
}

// ResetPassword sets a new password for a user
func (s *Service) ResetPassword(ctx context.Context, id uuid.UUID, password string, meta audit.Meta) error {
	if err := validatePassword(password); err != nil {
		return err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := user.SetPassword(password); err != nil {
		return services.WrapInternal("failed to hash password", err)
	}
	user.UpdatedAt = s.now()

	if err := s.users.Update(ctx, user); err != nil {
		return services.WrapInternal("failed to update password", err)
	}

	s.audit.Record(meta, models.AuditActionPasswordReset, models.ResourceUser, &id, nil)
	return nil
}

// EnsureAdmin creates an admin account when none exists yet
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}

	count, err := s.users.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return false, services.WrapInternal("failed to count admins", err)
	}
	if count > 0 {
		return false, nil
	}

	user, err := s.Create(ctx, CreateUserRequest{Email: email, Password: password, Role: models.RoleAdmin}, audit.Meta{RequestID: "bootstrap"})
	if err != nil {
		if errors.Is(err, services.ErrDuplicateEmail) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info("bootstrap admin created", zap.String("email", redact.Email(user.Email)))
	return true, nil
}

func validatePassword(password string) error {
	if len(password) < utils.MinPasswordLength {
		return services.ErrWeakPassword
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/tradeguard/internal/auth"
	"github.com/BradenHooton/tradeguard/internal/models"
	pkgauth "github.com/BradenHooton/tradeguard/pkg/auth"
	pkglogger "github.com/BradenHooton/tradeguard/pkg/logger"
)

// UserRepository defines the user lookups the login flow needs
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// LoginThrottle is satisfied by RateLimitService
type LoginThrottle interface {
	CheckLoginAllowed(ctx context.Context, clientID string) models.LoginDecision
	Record(ctx context.Context, attempt models.LoginAttempt)
}

// SessionIssuer is satisfied by SecureStoreService
type SessionIssuer interface {
	CreateSession(ctx context.Context, userID string) (*models.Session, error)
	ClearSession(ctx context.Context, token string) error
}

// AuthService runs the login flow: throttle check, credential check,
// outcome recording, session issue.
type AuthService struct {
	users       UserRepository
	throttle    LoginThrottle
	sessions    SessionIssuer
	hasher      *pkgauth.Hasher
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAuthService(users UserRepository, throttle LoginThrottle, sessions SessionIssuer, hasher *pkgauth.Hasher, timing *auth.TimingDelay, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		users:       users,
		throttle:    throttle,
		sessions:    sessions,
		hasher:      hasher,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// LoginRequest carries the credentials plus the request metadata used for
// throttling and audit
type LoginRequest struct {
	Email     string
	Password  string
	ClientID  string
	UserAgent string
}

const failureInvalidCredentials = "invalid_credentials"

// Login returns a new session on success. A locked-out client gets a
// *models.RateLimitExceededError before any credential check; unknown email
// and wrong password both yield models.ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*models.Session, error) {
	decision := s.throttle.CheckLoginAllowed(ctx, req.ClientID)
	if !decision.Allowed {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginLocked,
			IPAddress:     req.ClientID,
			UserAgent:     req.UserAgent,
			FailureReason: "locked_out",
		})
		return nil, &models.RateLimitExceededError{RetryAfter: decision.LockoutRemaining}
	}

	start := time.Now()
	user, err := s.verifyCredentials(ctx, req.Email, req.Password)
	if err != nil && !errors.Is(err, models.ErrUnauthorized) {
		return nil, err
	}
	success := err == nil

	attempt := models.LoginAttempt{
		ClientID:  req.ClientID,
		Success:   success,
		UserAgent: req.UserAgent,
	}
	event := pkglogger.AuditEvent{
		EventType: pkglogger.EventLoginAttempt,
		IPAddress: req.ClientID,
		UserAgent: req.UserAgent,
		Success:   success,
	}
	if success {
		event.UserID = user.ID
	} else {
		reason := failureInvalidCredentials
		attempt.FailureReason = &reason
		event.FailureReason = reason
	}
	s.throttle.Record(ctx, attempt)
	s.auditLogger.LogAuthAttempt(ctx, event)

	s.timing.WaitFrom(ctx, start, success)

	if !success {
		return nil, models.ErrUnauthorized
	}

	session, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return session, nil
}

// verifyCredentials returns ErrUnauthorized for unknown users and bad
// passwords alike and runs a bcrypt comparison in both cases
func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		s.hasher.CompareDummy(password)
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, pkgauth.ErrPasswordMismatch) {
			s.logger.Error("password comparison failed", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return nil, models.ErrUnauthorized
	}
	return user, nil
}

// Register creates a user. A weak password yields *pkgauth.PasswordValidationError
// and a taken email yields models.ErrConflict.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", models.ErrBadRequest)
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Logout clears the session behind token
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.ClearSession(ctx, token)
}

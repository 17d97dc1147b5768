package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/tradeguard/internal/metrics"
	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/google/uuid"
)

// AttemptStore holds the sliding-window attempt history per client identifier.
// Implementations prune attempts older than cutoff whenever a client's
// history is read or written.
type AttemptStore interface {
	Append(ctx context.Context, clientID string, attempt models.LoginAttempt, cutoff time.Time) error
	Recent(ctx context.Context, clientID string, cutoff time.Time) ([]models.LoginAttempt, error)
}

// LoginAuditRepository is the durable, monitoring-only record of attempts
type LoginAuditRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// RateLimitConfig controls the login throttle
type RateLimitConfig struct {
	MaxAttempts     int
	AttemptWindow   time.Duration
	LockoutDuration time.Duration
	AuditRetention  time.Duration
	Clock           func() time.Time
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = time.Hour
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 30 * 24 * time.Hour
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// RateLimitService decides whether a login may proceed for a client identifier.
// A client is locked out when it has at least MaxAttempts failures inside
// AttemptWindow and its most recent failure is younger than LockoutDuration.
// Successes never clear earlier failures.
type RateLimitService struct {
	store   AttemptStore
	audit   LoginAuditRepository
	config  RateLimitConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRateLimitService(store AttemptStore, audit LoginAuditRepository, config RateLimitConfig, m *metrics.Metrics, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:   store,
		audit:   audit,
		config:  config.withDefaults(),
		metrics: m,
		logger:  logger,
	}
}

// CheckLoginAllowed never fails. If the attempt store is unreachable the
// check fails open and the error is logged.
func (s *RateLimitService) CheckLoginAllowed(ctx context.Context, clientID string) models.LoginDecision {
	now := s.config.Clock()

	attempts, err := s.store.Recent(ctx, clientID, now.Add(-s.config.AttemptWindow))
	if err != nil {
		s.logger.Error("login throttle unavailable, allowing attempt",
			slog.String("client_id", clientID),
			slog.Any("error", err))
		s.metrics.LoginDecision(metrics.ResultFailOpen)
		return models.LoginDecision{Allowed: true, RemainingAttempts: s.config.MaxAttempts}
	}

	decision := s.decide(attempts, now)
	if decision.Allowed {
		s.metrics.LoginDecision(metrics.ResultAllowed)
	} else {
		s.metrics.LoginDecision(metrics.ResultLocked)
		s.logger.Warn("login locked out",
			slog.String("client_id", clientID),
			slog.Duration("lockout_remaining", decision.LockoutRemaining))
	}
	return decision
}

func (s *RateLimitService) decide(attempts []models.LoginAttempt, now time.Time) models.LoginDecision {
	cutoff := now.Add(-s.config.AttemptWindow)

	failed := 0
	var lastFailure time.Time
	for _, a := range attempts {
		if a.Success || a.Timestamp.Before(cutoff) {
			continue
		}
		failed++
		if a.Timestamp.After(lastFailure) {
			lastFailure = a.Timestamp
		}
	}

	decision := models.LoginDecision{
		Allowed:           true,
		RemainingAttempts: max(0, s.config.MaxAttempts-failed),
	}

	if failed >= s.config.MaxAttempts {
		if sinceLast := now.Sub(lastFailure); sinceLast < s.config.LockoutDuration {
			decision.Allowed = false
			decision.LockoutRemaining = s.config.LockoutDuration - sinceLast
		}
	}

	return decision
}

// RecordLoginAttempt appends an outcome for clientID
func (s *RateLimitService) RecordLoginAttempt(ctx context.Context, clientID string, success bool) {
	s.Record(ctx, models.LoginAttempt{ClientID: clientID, Success: success})
}

// Record appends the attempt to the throttle window, then writes the audit
// row. Neither failure is returned: the audit write is best-effort and a
// store failure must not block the login flow.
func (s *RateLimitService) Record(ctx context.Context, attempt models.LoginAttempt) {
	now := s.config.Clock()
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = now
	}
	attempt.ExpiresAt = attempt.Timestamp.Add(s.config.AuditRetention)

	s.metrics.LoginAttempt(attempt.Success)

	if err := s.store.Append(ctx, attempt.ClientID, attempt, now.Add(-s.config.AttemptWindow)); err != nil {
		s.logger.Error("failed to record login attempt in throttle window",
			slog.String("client_id", attempt.ClientID),
			slog.Any("error", err))
	}

	if s.audit == nil {
		return
	}
	if err := s.audit.RecordAttempt(ctx, &attempt); err != nil {
		s.logger.Warn("failed to write login attempt audit row",
			slog.String("client_id", attempt.ClientID),
			slog.Bool("success", attempt.Success),
			slog.Any("error", err))
	}
}

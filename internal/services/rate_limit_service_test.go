package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/tradeguard/internal/metrics"
	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/BradenHooton/tradeguard/internal/repositories"
	"github.com/BradenHooton/tradeguard/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is advanced manually by tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingAttemptStore struct{}

func (failingAttemptStore) Append(context.Context, string, models.LoginAttempt, time.Time) error {
	return errors.New("connection refused")
}

func (failingAttemptStore) Recent(context.Context, string, time.Time) ([]models.LoginAttempt, error) {
	return nil, errors.New("connection refused")
}

func newRateLimiter(t *testing.T, clock *fakeClock, audit services.LoginAuditRepository) (*services.RateLimitService, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	svc := services.NewRateLimitService(
		repositories.NewMemoryAttemptStore(),
		audit,
		services.RateLimitConfig{
			MaxAttempts:     5,
			AttemptWindow:   time.Hour,
			LockoutDuration: 15 * time.Minute,
			Clock:           clock.Now,
		},
		m,
		discardLogger(),
	)
	return svc, m
}

func failTimes(ctx context.Context, svc *services.RateLimitService, clock *fakeClock, clientID string, n int, gap time.Duration) {
	for i := 0; i < n; i++ {
		svc.RecordLoginAttempt(ctx, clientID, false)
		clock.Advance(gap)
	}
}

func TestRateLimit_InitialAttemptAllowed(t *testing.T) {
	svc, _ := newRateLimiter(t, newFakeClock(), &MockLoginAuditRepository{})

	d := svc.CheckLoginAllowed(context.Background(), "198.51.100.1")

	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.RemainingAttempts)
	assert.Zero(t, d.LockoutRemainingMs())
}

func TestRateLimit_RemainingAttemptsCountDown(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newRateLimiter(t, clock, &MockLoginAuditRepository{})
	ctx := context.Background()

	failTimes(ctx, svc, clock, "198.51.100.1", 3, time.Minute)

	d := svc.CheckLoginAllowed(ctx, "198.51.100.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.RemainingAttempts)
}

func TestRateLimit_MaxFailuresLocksOut(t *testing.T) {
	clock := newFakeClock()
	svc, m := newRateLimiter(t, clock, &MockLoginAuditRepository{})
	ctx := context.Background()

	failTimes(ctx, svc, clock, "198.51.100.1", 5, time.Minute)

	d := svc.CheckLoginAllowed(ctx, "198.51.100.1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.RemainingAttempts)
	assert.Greater(t, d.LockoutRemainingMs(), int64(0))
	assert.Equal(t, 14*time.Minute, d.LockoutRemaining, "measured from the last failure, one minute ago")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginDecisions.WithLabelValues(metrics.ResultLocked)))
}

func TestRateLimit_OtherClientsUnaffected(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newRateLimiter(t, clock, &MockLoginAuditRepository{})
	ctx := context.Background()

	failTimes(ctx, svc, clock, "198.51.100.1", 5, time.Second)

	assert.True(t, svc.CheckLoginAllowed(ctx, "198.51.100.2").Allowed)
}

func TestRateLimit_SuccessDoesNotClearLockout(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newRateLimiter(t, clock, &MockLoginAuditRepository{})
	ctx := context.Background()

	failTimes(ctx, svc, clock, "198.51.100.1", 5, time.Second)
	svc.RecordLoginAttempt(ctx, "198.51.100.1", true)
	clock.Advance(5 * time.Minute)

	d := svc.CheckLoginAllowed(ctx, "198.51.100.1")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.LockoutRemainingMs(), int64(0))
}

func TestRateLimit_LockoutEndsAfterDurationFromLastFailure(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newRateLimiter(t, clock, &MockLoginAuditRepository{})
	ctx := context.Background()

	failTimes(ctx, svc, clock, "198.51.100.1", 5, 0)
	clock.Advance(15 * time.Minute)

	d := svc.CheckLoginAllowed(ctx, "198.51.100.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.RemainingAttempts, "failures still count within the window")
	assert.Zero(t, d.LockoutRemaining)
}

func TestRateLimit_AttemptsOutsideWindowIgnored(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newRateLimiter(t, clock, &MockLoginAuditRepository{})
	ctx := context.Background()

	failTimes(ctx, svc, clock, "198.51.100.1", 5, time.Second)
	clock.Advance(2 * time.Hour)

	d := svc.CheckLoginAllowed(ctx, "198.51.100.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.RemainingAttempts)
}

func TestRateLimit_AuditFailureIsSwallowed(t *testing.T) {
	clock := newFakeClock()
	audit := &MockLoginAuditRepository{
		RecordAttemptFunc: func(ctx context.Context, attempt *models.LoginAttempt) error {
			return errors.New("audit table unavailable")
		},
	}
	svc, _ := newRateLimiter(t, clock, audit)
	ctx := context.Background()

	failTimes(ctx, svc, clock, "198.51.100.1", 5, time.Second)

	assert.False(t, svc.CheckLoginAllowed(ctx, "198.51.100.1").Allowed, "throttle state is kept even when audit fails")
}

func TestRateLimit_AuditRowCarriesAttempt(t *testing.T) {
	clock := newFakeClock()
	audit := &MockLoginAuditRepository{}
	svc, _ := newRateLimiter(t, clock, audit)

	reason := "invalid_credentials"
	svc.Record(context.Background(), models.LoginAttempt{
		ClientID:      "198.51.100.1",
		UserAgent:     "Mozilla/5.0",
		FailureReason: &reason,
	})

	require.Len(t, audit.Recorded, 1)
	row := audit.Recorded[0]
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, "198.51.100.1", row.ClientID)
	assert.Equal(t, clock.Now(), row.Timestamp)
	assert.True(t, row.ExpiresAt.After(row.Timestamp))
	assert.Equal(t, "Mozilla/5.0", row.UserAgent)
}

func TestRateLimit_StoreFailureFailsOpen(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc := services.NewRateLimitService(failingAttemptStore{}, nil, services.RateLimitConfig{}, m, discardLogger())

	d := svc.CheckLoginAllowed(context.Background(), "198.51.100.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.RemainingAttempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginDecisions.WithLabelValues(metrics.ResultFailOpen)))

	assert.NotPanics(t, func() {
		svc.RecordLoginAttempt(context.Background(), "198.51.100.1", false)
	})
}

func TestRateLimit_ConcurrentRecording(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newRateLimiter(t, clock, &MockLoginAuditRepository{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.RecordLoginAttempt(ctx, "198.51.100.1", false)
			_ = svc.CheckLoginAllowed(ctx, "198.51.100.1")
		}()
	}
	wg.Wait()

	d := svc.CheckLoginAllowed(ctx, "198.51.100.1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.RemainingAttempts)
}

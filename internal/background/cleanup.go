package background

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/tradeguard/internal/metrics"
)

// SessionSweeper removes sessions whose expiry has passed
type SessionSweeper interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

// AttemptPurger drops login-attempt audit rows past their retention
type AttemptPurger interface {
	DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error)
}

// CleanupManager periodically sweeps expired sessions and audit rows. It is
// the backstop for sessions that are never looked up again.
type CleanupManager struct {
	sessions SessionSweeper
	attempts AttemptPurger // optional
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	running  atomic.Bool
	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	inflight sync.WaitGroup
}

// NewCleanupManager creates a new cleanup manager. attempts may be nil.
func NewCleanupManager(sessions SessionSweeper, attempts AttemptPurger, m *metrics.Metrics, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		sessions: sessions,
		attempts: attempts,
		metrics:  m,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every tick until Stop is called
// or ctx is cancelled. It blocks; run it in its own goroutine.
func (cm *CleanupManager) Start(ctx context.Context) {
	cm.started.Store(true)
	defer close(cm.done)
	// tick sweeps must finish before done is closed
	defer cm.inflight.Wait()

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			// a slow sweep must not pile up behind itself
			cm.inflight.Add(1)
			go func() {
				defer cm.inflight.Done()
				cm.RunOnce(ctx)
			}()
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs one sweep. It returns false without doing anything when
// another sweep is still in progress.
func (cm *CleanupManager) RunOnce(ctx context.Context) bool {
	if !cm.running.CompareAndSwap(false, true) {
		cm.logger.Warn("previous cleanup still running, skipping this tick")
		return false
	}
	defer cm.running.Store(false)

	cleanupCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	swept, err := cm.sessions.SweepExpiredSessions(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired sessions", slog.Any("error", err))
	} else if swept > 0 {
		cm.metrics.Swept(swept)
		cm.logger.Info("expired session sweep completed", slog.Int64("rows_deleted", swept))
	}

	if cm.attempts != nil {
		purged, err := cm.attempts.DeleteExpiredAttempts(cleanupCtx, time.Now())
		if err != nil {
			cm.logger.Error("failed to purge login attempt audit rows", slog.Any("error", err))
		} else if purged > 0 {
			cm.logger.Info("login attempt audit purge completed", slog.Int64("rows_deleted", purged))
		}
	}

	return true
}

// Stop signals the loop to exit and waits for it and any sweep it started.
// Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
	if cm.started.Load() {
		<-cm.done
	}
}

package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/tradeguard/internal/models"
)

// MemoryAttemptStore keeps per-client attempt history in process memory.
// It is correct for a single instance only; use RedisAttemptStore when the
// API runs behind a load balancer.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string][]models.LoginAttempt
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{attempts: make(map[string][]models.LoginAttempt)}
}

// Append prunes the client's history to the window and adds attempt
func (s *MemoryAttemptStore) Append(_ context.Context, clientID string, attempt models.LoginAttempt, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := prune(s.attempts[clientID], cutoff)
	s.attempts[clientID] = append(kept, attempt)
	return nil
}

// Recent returns a copy of the attempts at or after cutoff, oldest first
func (s *MemoryAttemptStore) Recent(_ context.Context, clientID string, cutoff time.Time) ([]models.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := prune(s.attempts[clientID], cutoff)
	if len(kept) == 0 {
		delete(s.attempts, clientID)
		return nil, nil
	}
	s.attempts[clientID] = kept

	out := make([]models.LoginAttempt, len(kept))
	copy(out, kept)
	return out, nil
}

// Clients reports how many identifiers currently hold history
func (s *MemoryAttemptStore) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// prune drops attempts older than cutoff in place
func prune(attempts []models.LoginAttempt, cutoff time.Time) []models.LoginAttempt {
	kept := attempts[:0]
	for _, a := range attempts {
		if !a.Timestamp.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	return kept
}

package models

import "time"

// LoginAttempt is a single login attempt for a client identifier (usually an IP).
// Attempts are appended, never mutated, and pruned once outside the attempt window.
type LoginAttempt struct {
	ID            string    `db:"id"`
	ClientID      string    `db:"client_id"`
	Timestamp     time.Time `db:"attempt_time"`
	Success       bool      `db:"success"`
	UserAgent     string    `db:"user_agent"`
	FailureReason *string   `db:"failure_reason"`
	ExpiresAt     time.Time `db:"expires_at"`
}

// LoginDecision is the outcome of a rate limit check
type LoginDecision struct {
	Allowed           bool          `json:"allowed"`
	RemainingAttempts int           `json:"remaining_attempts"`
	LockoutRemaining  time.Duration `json:"-"`
}

// LockoutRemainingMs reports the remaining lockout in milliseconds
func (d LoginDecision) LockoutRemainingMs() int64 {
	return d.LockoutRemaining.Milliseconds()
}

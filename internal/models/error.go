package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Throttling and session errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidSession    = errors.New("invalid or expired session")

	// Encryption-at-rest errors
	ErrDecryptionFailure    = errors.New("decryption failed")
	ErrEncryptionKeyMissing = errors.New("encryption secret is not configured")

	// Broker errors
	ErrBrokerConfigMissing = errors.New("broker signing credentials are not configured")
	ErrBrokerNotConnected  = errors.New("no broker account connected")
)

// RateLimitExceededError is returned when a client identifier is locked out.
// RetryAfter is the remaining lockout time.
type RateLimitExceededError struct {
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}

// RetryAfterMinutes rounds the remaining lockout up to whole minutes (at least 1).
func (e *RateLimitExceededError) RetryAfterMinutes() int {
	minutes := int(math.Ceil(e.RetryAfter.Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// UserMessage renders the lockout as a human-readable hint.
func (e *RateLimitExceededError) UserMessage() string {
	minutes := e.RetryAfterMinutes()
	if minutes == 1 {
		return "Too many failed login attempts. Try again in 1 minute."
	}
	return fmt.Sprintf("Too many failed login attempts. Try again in %d minutes.", minutes)
}

// DecryptionError reports why a stored ciphertext could not be opened.
// It never carries ciphertext or plaintext.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.Reason, e.Err)
	}
	return "decryption failed: " + e.Reason
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is.
func (e *DecryptionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecryptionFailure}
	}
	return []error{ErrDecryptionFailure, e.Err}
}

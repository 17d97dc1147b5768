package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 14
	MinPasswordLen = 8
	MaxPasswordLen = 72 // bcrypt ignores bytes beyond 72
)

// ErrPasswordMismatch is returned when a password does not match its hash
var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordValidationError lists the rules a candidate password broke.
// Error() stays generic and never includes the password.
type PasswordValidationError struct {
	Rules []string
}

func (e *PasswordValidationError) Error() string {
	return "invalid password"
}

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "password123!": {},
	"12345678": {}, "123456789": {}, "qwerty123": {}, "letmein1!": {},
	"welcome1!": {}, "trustno1": {}, "passw0rd": {}, "passw0rd!": {},
	"tradingjournal1!": {}, "stocks123!": {},
}

// Hasher hashes and verifies passwords with bcrypt. Cost is configurable so
// tests can use bcrypt.MinCost.
type Hasher struct {
	Cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = BcryptCost
	}
	return &Hasher{Cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare returns ErrPasswordMismatch when the password is wrong
func (h *Hasher) Compare(hashed, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// CompareDummy burns the same bcrypt work as Compare against a throwaway hash.
// Call it when the account does not exist so both paths take equal time.
func (h *Hasher) CompareDummy(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("unused-placeholder-password"), h.Cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

// ValidatePassword enforces the password policy for new accounts
func ValidatePassword(password string) error {
	var rules []string

	if len(password) < MinPasswordLen {
		rules = append(rules, fmt.Sprintf("at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		rules = append(rules, fmt.Sprintf("at most %d bytes", MaxPasswordLen))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper {
		rules = append(rules, "an uppercase letter")
	}
	if !lower {
		rules = append(rules, "a lowercase letter")
	}
	if !digit {
		rules = append(rules, "a digit")
	}
	if !special {
		rules = append(rules, "a special character")
	}

	if _, common := commonPasswords[strings.ToLower(password)]; common {
		rules = append(rules, "not a common password")
	}

	if len(rules) > 0 {
		return &PasswordValidationError{Rules: rules}
	}
	return nil
}

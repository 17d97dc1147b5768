package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// SessionTokenBytes is the entropy of a session token (256 bits)
const SessionTokenBytes = 32

var ErrMalformedToken = errors.New("malformed session token")

// GenerateSessionToken returns a random URL-safe token and the SHA-256 hash
// under which the session is stored. The token itself is never persisted.
func GenerateSessionToken() (token, hash string, err error) {
	raw := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate session token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, HashSessionToken(token), nil
}

// HashSessionToken derives the storage key for a token
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateSessionToken checks the shape of a presented token before any lookup
func ValidateSessionToken(token string) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != SessionTokenBytes {
		return ErrMalformedToken
	}
	return nil
}

// ConstantTimeEqual compares two secrets without leaking the mismatch position
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

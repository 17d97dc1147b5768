package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

var (
	ErrNoSessionCookie      = errors.New("no session cookie")
	ErrInvalidSessionCookie = errors.New("session cookie failed verification")
)

// CookieConfig describes the session cookie
type CookieConfig struct {
	Name   string // <app>_session
	Domain string // empty = current host only
	Secure bool
	MaxAge time.Duration
}

// SessionCookies seals the session token into an authenticated, encrypted
// cookie value so forged or altered cookies are rejected before any store lookup.
type SessionCookies struct {
	codec  *securecookie.SecureCookie
	config CookieConfig
}

// NewSessionCookies takes a 32-byte HMAC key and a 32-byte AES key
func NewSessionCookies(hashKey, blockKey []byte, config CookieConfig) (*SessionCookies, error) {
	if len(hashKey) < 32 {
		return nil, fmt.Errorf("cookie hash key must be at least 32 bytes")
	}
	if config.Name == "" {
		return nil, fmt.Errorf("cookie name is required")
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(config.MaxAge.Seconds()))
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &SessionCookies{codec: codec, config: config}, nil
}

func (c *SessionCookies) Name() string {
	return c.config.Name
}

// Set writes an HttpOnly, SameSite=Strict cookie carrying token
func (c *SessionCookies) Set(w http.ResponseWriter, token string) error {
	encoded, err := c.codec.Encode(c.config.Name, token)
	if err != nil {
		return fmt.Errorf("encoding session cookie: %w", err)
	}

	maxAge := int(c.config.MaxAge.Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     c.config.Name,
		Value:    encoded,
		Path:     "/",
		Domain:   c.config.Domain,
		Expires:  time.Now().Add(c.config.MaxAge),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// Clear expires the cookie in the browser
func (c *SessionCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.config.Name,
		Value:    "",
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Read returns the session token carried by the request cookie
func (c *SessionCookies) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(c.config.Name)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSessionCookie
	}

	var token string
	if err := c.codec.Decode(c.config.Name, cookie.Value, &token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionCookie, err)
	}
	if err := ValidateSessionToken(token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionCookie, err)
	}
	return token, nil
}

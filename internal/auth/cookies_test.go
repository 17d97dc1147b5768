package auth_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/tradeguard/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCookies(t *testing.T, secure bool) *auth.SessionCookies {
	t.Helper()
	c, err := auth.NewSessionCookies(
		bytes.Repeat([]byte{1}, 32),
		bytes.Repeat([]byte{2}, 32),
		auth.CookieConfig{Name: "tradeguard_session", Secure: secure, MaxAge: 24 * time.Hour},
	)
	require.NoError(t, err)
	return c
}

func newToken(t *testing.T) string {
	t.Helper()
	token, _, err := auth.GenerateSessionToken()
	require.NoError(t, err)
	return token
}

// replay copies the Set-Cookie headers of rec onto a fresh request
func replay(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSessionCookies_RoundTrip(t *testing.T) {
	cookies := newCookies(t, true)
	token := newToken(t)

	rec := httptest.NewRecorder()
	require.NoError(t, cookies.Set(rec, token))

	got, err := cookies.Read(replay(rec))
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestSessionCookies_Attributes(t *testing.T) {
	cookies := newCookies(t, true)

	rec := httptest.NewRecorder()
	require.NoError(t, cookies.Set(rec, newToken(t)))

	set := rec.Result().Cookies()
	require.Len(t, set, 1)
	c := set[0]
	assert.Equal(t, "tradeguard_session", c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 86400, c.MaxAge)
}

func TestSessionCookies_ValueIsNotTheToken(t *testing.T) {
	cookies := newCookies(t, false)
	token := newToken(t)

	rec := httptest.NewRecorder()
	require.NoError(t, cookies.Set(rec, token))

	assert.NotContains(t, rec.Result().Cookies()[0].Value, token)
}

func TestSessionCookies_ForgedCookieRejected(t *testing.T) {
	cookies := newCookies(t, false)

	tests := map[string]string{
		"raw token": newToken(t),
		"garbage":   "not-a-cookie",
		"empty-ish": "|||",
	}

	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "tradeguard_session", Value: value})

			_, err := cookies.Read(req)
			assert.ErrorIs(t, err, auth.ErrInvalidSessionCookie)
		})
	}
}

func TestSessionCookies_OtherKeyRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, newCookies(t, false).Set(rec, newToken(t)))

	other, err := auth.NewSessionCookies(bytes.Repeat([]byte{9}, 32), bytes.Repeat([]byte{2}, 32),
		auth.CookieConfig{Name: "tradeguard_session", MaxAge: time.Hour})
	require.NoError(t, err)

	_, err = other.Read(replay(rec))
	assert.ErrorIs(t, err, auth.ErrInvalidSessionCookie)
}

func TestSessionCookies_Missing(t *testing.T) {
	_, err := newCookies(t, false).Read(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, auth.ErrNoSessionCookie)
}

func TestSessionCookies_Clear(t *testing.T) {
	rec := httptest.NewRecorder()
	newCookies(t, true).Clear(rec)

	c := rec.Result().Cookies()[0]
	assert.Equal(t, "tradeguard_session", c.Name)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestNewSessionCookies_Validation(t *testing.T) {
	_, err := auth.NewSessionCookies([]byte("short"), nil, auth.CookieConfig{Name: "x"})
	assert.Error(t, err)

	_, err = auth.NewSessionCookies(bytes.Repeat([]byte{1}, 32), nil, auth.CookieConfig{})
	assert.Error(t, err)
}

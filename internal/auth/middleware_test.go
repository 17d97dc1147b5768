package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/tradeguard/internal/auth"
	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validatorFunc func(ctx context.Context, token string) (*models.Session, error)

func (f validatorFunc) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	return f(ctx, token)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.UserIDFromContext(r.Context())
		_, _ = w.Write([]byte(id))
	})
}

func TestRequireSession(t *testing.T) {
	cookies := newCookies(t, false)
	token := newToken(t)

	withCookie := func() *http.Request {
		rec := httptest.NewRecorder()
		require.NoError(t, cookies.Set(rec, token))
		return replay(rec)
	}

	tests := []struct {
		name      string
		req       func() *http.Request
		validator validatorFunc
		status    int
		body      string
		clears    bool
	}{
		{
			name: "valid session",
			req:  withCookie,
			validator: func(ctx context.Context, tok string) (*models.Session, error) {
				assert.Equal(t, token, tok)
				return &models.Session{UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
			},
			status: http.StatusOK,
			body:   "user-1",
		},
		{
			name:   "no cookie",
			req:    func() *http.Request { return httptest.NewRequest(http.MethodGet, "/", nil) },
			status: http.StatusUnauthorized,
		},
		{
			name: "forged cookie",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.AddCookie(&http.Cookie{Name: "tradeguard_session", Value: token})
				return r
			},
			status: http.StatusUnauthorized,
			clears: true,
		},
		{
			name: "expired session",
			req:  withCookie,
			validator: func(ctx context.Context, tok string) (*models.Session, error) {
				return nil, models.ErrInvalidSession
			},
			status: http.StatusUnauthorized,
			clears: true,
		},
		{
			name: "store failure",
			req:  withCookie,
			validator: func(ctx context.Context, tok string) (*models.Session, error) {
				return nil, errors.New("connection refused")
			},
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.validator
			if v == nil {
				v = func(context.Context, string) (*models.Session, error) {
					t.Fatal("validator must not be reached")
					return nil, nil
				}
			}
			handler := auth.RequireSession(v, cookies, discard())(echoUser())

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tt.req())

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			cleared := false
			for _, c := range rec.Result().Cookies() {
				if c.Name == "tradeguard_session" && c.MaxAge < 0 {
					cleared = true
				}
			}
			assert.Equal(t, tt.clears, cleared)
		})
	}
}

func TestRequireInternalKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name      string
		expected  string
		presented string
		status    int
	}{
		{"matching key", "internal-key-123", "internal-key-123", http.StatusOK},
		{"wrong key", "internal-key-123", "internal-key-124", http.StatusForbidden},
		{"missing header", "internal-key-123", "", http.StatusForbidden},
		{"endpoint disabled", "", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/create-session", nil)
			if tt.presented != "" {
				req.Header.Set(auth.InternalAPIKeyHeader, tt.presented)
			}
			rec := httptest.NewRecorder()
			auth.RequireInternalKey(tt.expected)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestContextHelpers(t *testing.T) {
	_, ok := auth.UserIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := auth.WithSession(context.Background(), "user-1", "tok")
	id, ok := auth.UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)

	tok, ok := auth.SessionTokenFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)
}

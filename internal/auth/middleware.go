package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/tradeguard/internal/models"
	pkghttp "github.com/BradenHooton/tradeguard/pkg/http"
)

type contextKey string

const (
	userIDContextKey       contextKey = "user_id"
	sessionTokenContextKey contextKey = "session_token"

	// InternalAPIKeyHeader authenticates service-to-service calls
	InternalAPIKeyHeader = "X-Internal-Api-Key"
)

// SessionValidator resolves a session token to its live session
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
}

// RequireSession rejects requests without a valid session cookie and puts
// the session's user id into the request context
func RequireSession(validator SessionValidator, cookies *SessionCookies, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := cookies.Read(r)
			if err != nil {
				if errors.Is(err, ErrInvalidSessionCookie) {
					logger.Warn("rejected tampered session cookie", slog.String("path", r.URL.Path))
					cookies.Clear(w)
				}
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			session, err := validator.ValidateSession(r.Context(), token)
			if err != nil {
				if errors.Is(err, models.ErrInvalidSession) {
					cookies.Clear(w)
					pkghttp.WriteUnauthorized(w, "Session expired or invalid")
					return
				}
				logger.Error("session lookup failed", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Unable to verify session")
				return
			}

			ctx := WithSession(r.Context(), session.UserID, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireInternalKey guards service endpoints. An empty expected key
// disables the endpoint entirely.
func RequireInternalKey(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(InternalAPIKeyHeader)
			if expected == "" || presented == "" || !ConstantTimeEqual(presented, expected) {
				pkghttp.WriteForbidden(w, "Service credentials required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithSession(ctx context.Context, userID, token string) context.Context {
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, sessionTokenContextKey, token)
}

// UserIDFromContext returns the authenticated user id set by RequireSession
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey).(string)
	return id, ok && id != ""
}

func SessionTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(sessionTokenContextKey).(string)
	return token, ok && token != ""
}

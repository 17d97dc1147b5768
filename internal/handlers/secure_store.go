package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/tradeguard/internal/auth"
	"github.com/BradenHooton/tradeguard/internal/models"
	pkghttp "github.com/BradenHooton/tradeguard/pkg/http"
)

// SecureStoreServiceInterface is the session and encrypted data surface
type SecureStoreServiceInterface interface {
	CreateSession(ctx context.Context, userID string) (*models.Session, error)
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
	ClearSession(ctx context.Context, token string) error
	SaveUserData(ctx context.Context, userID string, data any) error
	GetUserData(ctx context.Context, userID string) (json.RawMessage, error)
	ClearUserData(ctx context.Context, userID string) error
}

// BrokerDisconnecter removes the user's upstream broker registration
type BrokerDisconnecter interface {
	Disconnect(ctx context.Context, userID string) error
}

// SecureStoreHandler serves the internal storage endpoints. Routes that act
// on user data sit behind auth.RequireSession.
type SecureStoreHandler struct {
	store   SecureStoreServiceInterface
	broker  BrokerDisconnecter // optional
	cookies *auth.SessionCookies
	logger  *slog.Logger
}

// NewSecureStoreHandler creates the handler. broker may be nil when no broker
// integration is configured.
func NewSecureStoreHandler(store SecureStoreServiceInterface, broker BrokerDisconnecter, cookies *auth.SessionCookies, logger *slog.Logger) *SecureStoreHandler {
	return &SecureStoreHandler{store: store, broker: broker, cookies: cookies, logger: logger}
}

// CreateSessionRequest is sent by trusted services only
type CreateSessionRequest struct {
	UserID string `json:"userId" validate:"required,max=128,printascii"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type ValidateSessionResponse struct {
	UserID string `json:"userId"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// SaveUser stores the request body, which must be JSON, encrypted for the
// session's user
// @Router /save-user [post]
func (h *SecureStoreHandler) SaveUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Request body too large")
		return
	}
	if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
		pkghttp.WriteBadRequest(w, "Request body must be valid JSON")
		return
	}

	if err := h.store.SaveUserData(r.Context(), userID, json.RawMessage(body)); err != nil {
		h.logger.Error("failed to save user data", slog.String("user_id", userID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to save user data")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// GetUser returns the decrypted payload
// @Router /get-user [get]
func (h *SecureStoreHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	data, err := h.store.GetUserData(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "No user data stored")
		case errors.Is(err, models.ErrDecryptionFailure):
			// already logged by the store; the data must not be served
			pkghttp.WriteInternalError(w, "Stored data could not be verified")
		default:
			h.logger.Error("failed to load user data", slog.String("user_id", userID), slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Failed to load user data")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ClearUser removes the broker registration, deletes the user's data and
// ends the current session. Nothing is deleted locally if the broker refuses.
// @Router /clear-user [post]
func (h *SecureStoreHandler) ClearUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if h.broker != nil {
		if err := h.broker.Disconnect(r.Context(), userID); err != nil {
			writeBrokerError(w, h.logger, userID, err)
			return
		}
	}

	if err := h.store.ClearUserData(r.Context(), userID); err != nil {
		h.logger.Error("failed to clear user data", slog.String("user_id", userID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to clear user data")
		return
	}
	if token, ok := auth.SessionTokenFromContext(r.Context()); ok {
		if err := h.store.ClearSession(r.Context(), token); err != nil {
			h.logger.Warn("failed to clear session after user data", slog.Any("error", err))
		}
	}

	h.cookies.Clear(w)
	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// CreateSession issues a session for a user authenticated elsewhere. The
// route requires the internal API key.
// @Router /create-session [post]
func (h *SecureStoreHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	session, err := h.store.CreateSession(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to create session", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to create session")
		return
	}
	if err := h.cookies.Set(w, session.Token); err != nil {
		pkghttp.WriteInternalError(w, "Failed to create session")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CreateSessionResponse{SessionID: session.Token})
}

// ValidateSession reports the user behind the session cookie
// @Router /validate-session [get]
func (h *SecureStoreHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	token, err := h.cookies.Read(r)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidSessionCookie) {
			h.cookies.Clear(w)
		}
		pkghttp.WriteUnauthorized(w, "No valid session")
		return
	}

	session, err := h.store.ValidateSession(r.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSession) {
			h.cookies.Clear(w)
			pkghttp.WriteUnauthorized(w, "No valid session")
			return
		}
		h.logger.Error("session lookup failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Unable to verify session")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ValidateSessionResponse{UserID: session.UserID})
}

// ClearSession ends the session, if any, and expires the cookie
// @Router /clear-session [post]
func (h *SecureStoreHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if token, err := h.cookies.Read(r); err == nil {
		if err := h.store.ClearSession(r.Context(), token); err != nil {
			h.logger.Error("failed to clear session", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Failed to clear session")
			return
		}
	}

	h.cookies.Clear(w)
	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

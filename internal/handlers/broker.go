package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/tradeguard/internal/auth"
	"github.com/BradenHooton/tradeguard/internal/broker"
	"github.com/BradenHooton/tradeguard/internal/models"
	pkghttp "github.com/BradenHooton/tradeguard/pkg/http"
)

// BrokerServiceInterface defines the broker connection operations
type BrokerServiceInterface interface {
	Connect(ctx context.Context, userID string) (string, error)
	Accounts(ctx context.Context, userID string) ([]broker.Account, error)
	Disconnect(ctx context.Context, userID string) error
}

// BrokerHandler handles broker connection requests for the session's user
type BrokerHandler struct {
	service BrokerServiceInterface
	logger  *slog.Logger
}

func NewBrokerHandler(service BrokerServiceInterface, logger *slog.Logger) *BrokerHandler {
	return &BrokerHandler{service: service, logger: logger}
}

type ConnectResponse struct {
	RedirectURI string `json:"redirect_uri"`
}

type AccountsResponse struct {
	Accounts []broker.Account `json:"accounts"`
}

// Connect returns the broker connection portal URI
// @Router /broker/connect [post]
func (h *BrokerHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	uri, err := h.service.Connect(r.Context(), userID)
	if err != nil {
		writeBrokerError(w, h.logger, userID, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, ConnectResponse{RedirectURI: uri})
}

// Accounts lists the connected brokerage accounts
// @Router /broker/accounts [get]
func (h *BrokerHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	accounts, err := h.service.Accounts(r.Context(), userID)
	if err != nil {
		writeBrokerError(w, h.logger, userID, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, AccountsResponse{Accounts: accounts})
}

// Disconnect removes the broker connection
// @Router /broker/connection [delete]
func (h *BrokerHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Disconnect(r.Context(), userID); err != nil {
		writeBrokerError(w, h.logger, userID, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// writeBrokerError answers with an actionable message; upstream bodies are never relayed
func writeBrokerError(w http.ResponseWriter, logger *slog.Logger, userID string, err error) {
	var authErr *broker.AuthError
	isBroker := errors.As(err, &authErr) || errors.Is(err, broker.ErrUnavailable)

	switch {
	case errors.Is(err, models.ErrBrokerNotConnected):
		pkghttp.WriteNotFound(w, "No broker account connected")
		return
	case !isBroker:
		logger.Error("broker operation failed", slog.String("user_id", userID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	logger.Warn("broker call failed", slog.String("user_id", userID), slog.Any("error", err))

	msg := broker.UserMessage(err)
	switch broker.HTTPStatus(err) {
	case http.StatusForbidden:
		pkghttp.WriteForbidden(w, msg)
	case http.StatusServiceUnavailable:
		pkghttp.WriteServiceUnavailable(w, msg)
	default:
		pkghttp.WriteBadGateway(w, msg)
	}
}

package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/tradeguard/internal/auth"
	"github.com/BradenHooton/tradeguard/internal/handlers"
	"github.com/BradenHooton/tradeguard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Deps carries everything the route table needs
type Deps struct {
	Auth        *handlers.AuthHandler
	SecureStore *handlers.SecureStoreHandler
	Broker      *handlers.BrokerHandler

	Sessions       auth.SessionValidator
	Cookies        *auth.SessionCookies
	InternalAPIKey string
	AuthRateLimit  middleware.RateLimitConfig

	Health  http.Handler
	Metrics http.Handler
	Logger  *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, d Deps) {
	requireSession := auth.RequireSession(d.Sessions, d.Cookies, d.Logger)

	router.Method(http.MethodGet, "/health", d.Health)
	if d.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// Public auth endpoints sit behind a per-IP request cap in addition to
	// the per-client login lockout
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(d.AuthRateLimit))
		r.Post("/auth/login", d.Auth.Login)
		r.Post("/auth/register", d.Auth.Register)
	})
	router.Post("/auth/logout", d.Auth.Logout)

	// Session lifecycle
	router.With(auth.RequireInternalKey(d.InternalAPIKey)).Post("/create-session", d.SecureStore.CreateSession)
	router.Get("/validate-session", d.SecureStore.ValidateSession)
	router.Post("/clear-session", d.SecureStore.ClearSession)

	// Session-scoped routes
	router.Group(func(r chi.Router) {
		r.Use(requireSession)

		r.Post("/save-user", d.SecureStore.SaveUser)
		r.Get("/get-user", d.SecureStore.GetUser)
		r.Post("/clear-user", d.SecureStore.ClearUser)

		r.Post("/broker/connect", d.Broker.Connect)
		r.Get("/broker/accounts", d.Broker.Accounts)
		r.Delete("/broker/connection", d.Broker.Disconnect)
	})
}

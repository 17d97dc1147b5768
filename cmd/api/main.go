package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/tradeguard/internal/auth"
	"github.com/BradenHooton/tradeguard/internal/background"
	"github.com/BradenHooton/tradeguard/internal/broker"
	"github.com/BradenHooton/tradeguard/internal/config"
	"github.com/BradenHooton/tradeguard/internal/handlers"
	"github.com/BradenHooton/tradeguard/internal/metrics"
	middlewareCustom "github.com/BradenHooton/tradeguard/internal/middleware"
	"github.com/BradenHooton/tradeguard/internal/repositories"
	"github.com/BradenHooton/tradeguard/internal/routes"
	"github.com/BradenHooton/tradeguard/internal/services"
	pkgauth "github.com/BradenHooton/tradeguard/pkg/auth"
	"github.com/BradenHooton/tradeguard/pkg/crypto"
	pkghttp "github.com/BradenHooton/tradeguard/pkg/http"
	pkglogger "github.com/BradenHooton/tradeguard/pkg/logger"
	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code once its deferred cleanup has run
func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		return 1
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("app", cfg.Server.AppName))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("storage", cfg.Storage.Backend))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	// Storage backend
	backend, err := repositories.OpenBackend(startCtx, cfg, true, logger)
	if err != nil {
		logger.Error("failed to open storage", slog.Any("error", err))
		return 1
	}
	defer backend.Close()

	healthChecks := map[string]handlers.HealthChecker{"storage": backend}

	// Throttle window: shared Redis when configured, otherwise in-process
	var attemptStore services.AttemptStore = repositories.NewMemoryAttemptStore()
	if cfg.RateLimit.RedisURL != "" {
		client, err := repositories.NewRedisClient(startCtx, cfg.RateLimit.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			return 1
		}
		defer client.Close()
		redisStore := repositories.NewRedisAttemptStore(client)
		attemptStore = redisStore
		healthChecks["attempts"] = redisStore
	}

	// Encryption at rest
	var kdfSalt []byte
	if cfg.Crypto.KDFSalt != "" {
		kdfSalt = []byte(cfg.Crypto.KDFSalt)
	}
	cipher, err := crypto.NewCipher(cfg.Crypto.Secret, crypto.KeyParams{
		Salt:       kdfSalt,
		Iterations: cfg.Crypto.KDFIterations,
	})
	if err != nil {
		logger.Error("failed to initialize cipher", slog.Any("error", err))
		return 1
	}
	defer memguard.Purge()
	defer cipher.Destroy()

	cookies, err := newSessionCookies(cfg, kdfSalt)
	if err != nil {
		logger.Error("failed to initialize session cookies", slog.Any("error", err))
		return 1
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Broker
	brokerClient, err := broker.NewClient(broker.Config{
		BaseURL:      cfg.Broker.BaseURL,
		ClientID:     cfg.Broker.ClientID,
		ConsumerKey:  cfg.Broker.ConsumerKey,
		StepTimeout:  cfg.Broker.StepTimeout,
		ChainTimeout: cfg.Broker.ChainTimeout,
	}, &http.Client{Transport: http.DefaultTransport}, m, logger)
	if err != nil {
		logger.Error("failed to initialize broker client", slog.Any("error", err))
		return 1
	}

	// Services
	rateLimitService := services.NewRateLimitService(attemptStore, backend.LoginAttempts, services.RateLimitConfig{
		MaxAttempts:     cfg.RateLimit.MaxAttempts,
		AttemptWindow:   cfg.RateLimit.AttemptWindow,
		LockoutDuration: cfg.RateLimit.LockoutDuration,
	}, m, logger)

	secureStore := services.NewSecureStoreService(backend.Sessions, backend.UserData, cipher, services.SecureStoreConfig{
		SessionDuration: cfg.Session.Duration,
	}, logger, auditLogger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.RateLimit.TimingDelayBaseMs,
		RandomDelayMs:  cfg.RateLimit.TimingDelayRandomMs,
		DelayOnSuccess: cfg.RateLimit.TimingDelayOnSuccess,
	})

	authService := services.NewAuthService(backend.Users, rateLimitService, secureStore,
		pkgauth.NewHasher(pkgauth.BcryptCost), timingDelay, logger, auditLogger)
	brokerService := services.NewBrokerService(brokerClient, secureStore, logger, auditLogger)

	// Handlers
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	authHandler := handlers.NewAuthHandler(authService, cookies, ipConfig)
	secureStoreHandler := handlers.NewSecureStoreHandler(secureStore, brokerService, cookies, logger)
	brokerHandler := handlers.NewBrokerHandler(brokerService, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middlewareCustom.Metrics(m))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Deps{
		Auth:           authHandler,
		SecureStore:    secureStoreHandler,
		Broker:         brokerHandler,
		Sessions:       secureStore,
		Cookies:        cookies,
		InternalAPIKey: cfg.Internal.APIKey,
		AuthRateLimit: middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.AuthRequestsPerMinute,
			IPConfig:          ipConfig,
		},
		Health:  handlers.Health(healthChecks),
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:  logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(secureStore, backend.LoginAttempts, m, logger, cfg.Session.SweepInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := awaitShutdown(sigChan, serverErr, logger)

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
	return exitCode
}

// awaitShutdown blocks until a signal arrives or the listener fails and
// returns the exit code for that cause
func awaitShutdown(sigChan <-chan os.Signal, serverErr <-chan error, logger *slog.Logger) int {
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
		return 0
	case err := <-serverErr:
		logger.Error("server error", slog.Any("error", err))
		return 1
	}
}

// newSessionCookies derives the cookie keys from the encryption secret so
// they rotate with it
func newSessionCookies(cfg *config.Config, salt []byte) (*auth.SessionCookies, error) {
	hashKey, err := crypto.DeriveSubkey(cfg.Crypto.Secret, salt, "tradeguard session cookie mac", 32)
	if err != nil {
		return nil, err
	}
	blockKey, err := crypto.DeriveSubkey(cfg.Crypto.Secret, salt, "tradeguard session cookie enc", 32)
	if err != nil {
		return nil, err
	}

	return auth.NewSessionCookies(hashKey, blockKey, auth.CookieConfig{
		Name:   cfg.SessionCookieName(),
		Domain: cfg.Session.CookieDomain,
		Secure: cfg.Session.CookieSecure,
		MaxAge: cfg.Session.Duration,
	})
}

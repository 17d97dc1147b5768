package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/joho/godotenv"
)

const (
	StorageBackendPostgres = "postgres"
	StorageBackendBolt     = "bolt"

	// MinKDFIterations is the lowest PBKDF2 work factor accepted for the storage key
	MinKDFIterations = 100000
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Storage   StorageConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Crypto    CryptoConfig
	Broker    BrokerConfig
	Internal  InternalConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	AppName        string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type StorageConfig struct {
	Backend  string
	BoltPath string
}

type SessionConfig struct {
	Duration      time.Duration
	SweepInterval time.Duration
	CookieDomain  string
	CookieSecure  bool
}

type RateLimitConfig struct {
	MaxAttempts     int
	AttemptWindow   time.Duration
	LockoutDuration time.Duration
	RedisURL        string

	// Per-IP request budget for the public auth endpoints (httprate)
	AuthRequestsPerMinute int

	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
	TimingDelayOnSuccess bool
}

type CryptoConfig struct {
	Secret        string
	KDFSalt       string
	KDFIterations int
}

type BrokerConfig struct {
	BaseURL      string
	ClientID     string
	ConsumerKey  string
	StepTimeout  time.Duration
	ChainTimeout time.Duration
}

type InternalConfig struct {
	APIKey string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	secret := getEnv("ENCRYPTION_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("ENCRYPTION_SECRET is required: %w", models.ErrEncryptionKeyMissing)
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "tradeguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			AppName:        getEnv("APP_NAME", "tradeguard"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			Backend:  strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendPostgres)),
			BoltPath: getEnv("BOLT_PATH", "tradeguard.db"),
		},
		Session: SessionConfig{
			Duration:      getEnvAsDuration("SESSION_DURATION", 24*time.Hour),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 1*time.Hour),
			CookieDomain:  getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:  getEnvAsBool("COOKIE_SECURE", env == "production"),
		},
		RateLimit: RateLimitConfig{
			MaxAttempts:           getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			AttemptWindow:         getEnvAsDuration("LOGIN_ATTEMPT_WINDOW", 1*time.Hour),
			LockoutDuration:       getEnvAsDuration("LOGIN_LOCKOUT_DURATION", 15*time.Minute),
			RedisURL:              getEnv("RATE_LIMIT_REDIS_URL", ""),
			AuthRequestsPerMinute: getEnvAsInt("AUTH_REQUESTS_PER_MINUTE", 20),
			TimingDelayBaseMs:     getEnvAsInt("TIMING_DELAY_BASE_MS", 250),
			TimingDelayRandomMs:   getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			TimingDelayOnSuccess:  getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
		},
		Crypto: CryptoConfig{
			Secret:        secret,
			KDFSalt:       getEnv("ENCRYPTION_KDF_SALT", ""),
			KDFIterations: getEnvAsInt("ENCRYPTION_KDF_ITERATIONS", MinKDFIterations),
		},
		Broker: BrokerConfig{
			BaseURL:      strings.TrimRight(getEnv("BROKER_BASE_URL", "https://api.broker-aggregator.example"), "/"),
			ClientID:     getEnv("BROKER_CLIENT_ID", ""),
			ConsumerKey:  getEnv("BROKER_CONSUMER_KEY", ""),
			StepTimeout:  getEnvAsDuration("BROKER_STEP_TIMEOUT", 10*time.Second),
			ChainTimeout: getEnvAsDuration("BROKER_CHAIN_TIMEOUT", 45*time.Second),
		},
		Internal: InternalConfig{
			APIKey: getEnv("INTERNAL_API_KEY", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageBackendPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case StorageBackendBolt:
		if c.Storage.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required for the bolt storage backend")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q (got %q)",
			StorageBackendPostgres, StorageBackendBolt, c.Storage.Backend)
	}

	if err := validateSecret("ENCRYPTION_SECRET", c.Crypto.Secret, c.Server.Env); err != nil {
		return err
	}
	if c.Crypto.KDFIterations < MinKDFIterations {
		return fmt.Errorf("ENCRYPTION_KDF_ITERATIONS must be at least %d (got %d)",
			MinKDFIterations, c.Crypto.KDFIterations)
	}
	if c.Server.Env == "production" && c.Crypto.KDFSalt == "" {
		return fmt.Errorf("ENCRYPTION_KDF_SALT is required in production")
	}

	if c.Broker.ClientID == "" || c.Broker.ConsumerKey == "" {
		return fmt.Errorf("BROKER_CLIENT_ID and BROKER_CONSUMER_KEY are required: %w", models.ErrBrokerConfigMissing)
	}

	if c.RateLimit.MaxAttempts < 1 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	if c.RateLimit.LockoutDuration <= 0 || c.RateLimit.AttemptWindow <= 0 {
		return fmt.Errorf("LOGIN_ATTEMPT_WINDOW and LOGIN_LOCKOUT_DURATION must be positive")
	}
	if c.Session.Duration <= 0 {
		return fmt.Errorf("SESSION_DURATION must be positive")
	}

	return nil
}

// validateSecret enforces minimum strength for long-lived secrets
func validateSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak || strings.Trim(secretLower, weak) == "" {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

// SessionCookieName is the cookie carrying the session token
func (c *Config) SessionCookieName() string {
	return c.Server.AppName + "_session"
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}

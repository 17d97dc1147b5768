package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/tradeguard/internal/config"
	"github.com/BradenHooton/tradeguard/internal/database"
	"github.com/BradenHooton/tradeguard/internal/models"
)

// SessionStore persists sessions by token hash
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserDataStore persists sealed user payloads
type UserDataStore interface {
	Upsert(ctx context.Context, data *models.EncryptedUserData) error
	Get(ctx context.Context, userID, kind string) (*models.EncryptedUserData, error)
	Delete(ctx context.Context, userID, kind string) error
	DeleteAll(ctx context.Context, userID string) error
}

// UserStore persists account records
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// LoginAuditStore is the durable login attempt trail
type LoginAuditStore interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error)
}

// Backend is one opened storage backend
type Backend struct {
	Name          string
	Users         UserStore
	Sessions      SessionStore
	UserData      UserDataStore
	LoginAttempts LoginAuditStore

	// DB is set for the postgres backend only
	DB *database.DB

	healthCheck func(ctx context.Context) error
	close       func() error
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	return b.healthCheck(ctx)
}

func (b *Backend) Close() error {
	return b.close()
}

// OpenBackend opens the configured storage. Postgres migrations run when
// migrate is set.
func OpenBackend(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) (*Backend, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendBolt:
		store, err := OpenBoltStore(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		logger.Info("bolt storage opened", slog.String("path", cfg.Storage.BoltPath))
		return &Backend{
			Name:          config.StorageBackendBolt,
			Users:         store.Users(),
			Sessions:      store.Sessions(),
			UserData:      store.UserData(),
			LoginAttempts: store.LoginAttempts(),
			healthCheck:   store.HealthCheck,
			close:         store.Close,
		}, nil

	case config.StorageBackendPostgres:
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
		}
		return &Backend{
			Name:          config.StorageBackendPostgres,
			Users:         NewUserRepository(db),
			Sessions:      NewSessionRepository(db),
			UserData:      NewUserDataRepository(db),
			LoginAttempts: NewLoginAttemptRepository(db),
			DB:            db,
			healthCheck:   db.HealthCheck,
			close:         db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

//go:build integration

package repositories

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/BradenHooton/tradeguard/internal/database"
	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *database.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("tradeguard"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	code := func() int {
		defer container.Terminate(ctx)

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
			return 1
		}
		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
			return 1
		}

		testDB = database.NewFromPool(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
		defer testDB.Close()

		if err := testDB.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
			return 1
		}
		return m.Run()
	}()

	os.Exit(code)
}

func truncateTables(t *testing.T) {
	t.Helper()
	for _, table := range []string{"sessions", "user_data", "login_attempts", "users"} {
		_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE "+pq.QuoteIdentifier(table)+" CASCADE")
		require.NoError(t, err)
	}
}

func TestSessionRepository_Postgres(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewSessionRepository(testDB)
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.Create(ctx, &models.Session{TokenHash: "h1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, &models.Session{TokenHash: "h2", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(-time.Minute)}))
	assert.ErrorIs(t, repo.Create(ctx, &models.Session{TokenHash: "h1", UserID: "u2", CreatedAt: now, ExpiresAt: now}), models.ErrConflict)

	got, err := repo.GetByTokenHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repo.Delete(ctx, "h1"))
	_, err = repo.GetByTokenHash(ctx, "h1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserDataRepository_Postgres(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewUserDataRepository(testDB)
	now := time.Now().UTC()

	require.NoError(t, repo.Upsert(ctx, &models.EncryptedUserData{UserID: "u1", Kind: models.UserDataKindProfile, Ciphertext: "a", UpdatedAt: now}))
	require.NoError(t, repo.Upsert(ctx, &models.EncryptedUserData{UserID: "u1", Kind: models.UserDataKindProfile, Ciphertext: "b", UpdatedAt: now}))
	require.NoError(t, repo.Upsert(ctx, &models.EncryptedUserData{UserID: "u1", Kind: models.UserDataKindBroker, Ciphertext: "c", UpdatedAt: now}))

	got, err := repo.Get(ctx, "u1", models.UserDataKindProfile)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Ciphertext)

	require.NoError(t, repo.DeleteAll(ctx, "u1"))
	_, err = repo.Get(ctx, "u1", models.UserDataKindBroker)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserRepository_Postgres(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewUserRepository(testDB)

	created, err := repo.Create(ctx, &models.User{Email: "Trader@Example.com", PasswordHash: "hash", Name: "T"})
	require.NoError(t, err)

	got, err := repo.GetByEmail(ctx, "trader@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = repo.Create(ctx, &models.User{Email: "TRADER@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestLoginAttemptRepository_Postgres(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewLoginAttemptRepository(testDB)
	now := time.Now().UTC()
	reason := "invalid_credentials"

	require.NoError(t, repo.RecordAttempt(ctx, &models.LoginAttempt{ClientID: "203.0.113.5", Timestamp: now, FailureReason: &reason, ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, repo.RecordAttempt(ctx, &models.LoginAttempt{ClientID: "203.0.113.5", Timestamp: now, Success: true, ExpiresAt: now.Add(time.Hour)}))

	recent, err := repo.ListRecent(ctx, "203.0.113.5", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	n, err := repo.DeleteExpiredAttempts(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

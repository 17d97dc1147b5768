package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/tradeguard/internal/database"
	"github.com/BradenHooton/tradeguard/internal/models"
)

// SessionRepository stores sessions keyed by the SHA-256 of their token
type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Pool.Exec(ctx, query, session.TokenHash, session.UserID, session.CreatedAt, session.ExpiresAt)
	return database.MapPostgresError(err)
}

// GetByTokenHash returns models.ErrNotFound when no session exists
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `
		SELECT token_hash, user_id, created_at, expires_at
		FROM sessions WHERE token_hash = $1
	`

	var s models.Session
	err := r.db.Pool.QueryRow(ctx, query, tokenHash).Scan(&s.TokenHash, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// Delete is a no-op when the session does not exist
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

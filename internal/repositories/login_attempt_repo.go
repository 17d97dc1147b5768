package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/tradeguard/internal/database"
	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/google/uuid"
)

// LoginAttemptRepository is the durable audit trail of login attempts.
// Throttling decisions never read from it.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends one audit row
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}

	query := `
		INSERT INTO login_attempts (id, client_id, attempted_at, success, user_agent, failure_reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.ClientID,
		attempt.Timestamp,
		attempt.Success,
		attempt.UserAgent,
		attempt.FailureReason,
		attempt.ExpiresAt,
	)
	return database.MapPostgresError(err)
}

// ListRecent returns a client's attempts since the given time, newest first
func (r *LoginAttemptRepository) ListRecent(ctx context.Context, clientID string, since time.Time) ([]models.LoginAttempt, error) {
	query := `
		SELECT id, client_id, attempted_at, success, COALESCE(user_agent, ''), failure_reason, expires_at
		FROM login_attempts
		WHERE client_id = $1 AND attempted_at >= $2
		ORDER BY attempted_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, clientID, since)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	attempts := make([]models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Timestamp, &a.Success, &a.UserAgent, &a.FailureReason, &a.ExpiresAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// DeleteExpiredAttempts removes audit rows past their retention
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

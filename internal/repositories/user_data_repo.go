package repositories

import (
	"context"

	"github.com/BradenHooton/tradeguard/internal/database"
	"github.com/BradenHooton/tradeguard/internal/models"
)

// UserDataRepository persists ciphertext only; it never sees plaintext
type UserDataRepository struct {
	db *database.DB
}

func NewUserDataRepository(db *database.DB) *UserDataRepository {
	return &UserDataRepository{db: db}
}

func (r *UserDataRepository) Upsert(ctx context.Context, data *models.EncryptedUserData) error {
	query := `
		INSERT INTO user_data (user_id, kind, ciphertext, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, kind)
		DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool.Exec(ctx, query, data.UserID, data.Kind, data.Ciphertext, data.UpdatedAt)
	return database.MapPostgresError(err)
}

// Get returns models.ErrNotFound when the user has no record of that kind
func (r *UserDataRepository) Get(ctx context.Context, userID, kind string) (*models.EncryptedUserData, error) {
	query := `
		SELECT user_id, kind, ciphertext, updated_at
		FROM user_data WHERE user_id = $1 AND kind = $2
	`

	var d models.EncryptedUserData
	err := r.db.Pool.QueryRow(ctx, query, userID, kind).Scan(&d.UserID, &d.Kind, &d.Ciphertext, &d.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &d, nil
}

func (r *UserDataRepository) Delete(ctx context.Context, userID, kind string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM user_data WHERE user_id = $1 AND kind = $2`, userID, kind)
	return err
}

func (r *UserDataRepository) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM user_data WHERE user_id = $1`, userID)
	return err
}

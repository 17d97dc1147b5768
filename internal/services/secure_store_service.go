package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/tradeguard/internal/auth"
	"github.com/BradenHooton/tradeguard/internal/models"
	pkglogger "github.com/BradenHooton/tradeguard/pkg/logger"
)

// SessionRepository persists sessions keyed by token hash
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserDataRepository persists opaque ciphertexts per (user, kind)
type UserDataRepository interface {
	Upsert(ctx context.Context, data *models.EncryptedUserData) error
	Get(ctx context.Context, userID, kind string) (*models.EncryptedUserData, error)
	Delete(ctx context.Context, userID, kind string) error
	DeleteAll(ctx context.Context, userID string) error
}

// Sealer is the authenticated cipher used for data at rest
type Sealer interface {
	Encrypt(plaintext, associated []byte) (string, error)
	Decrypt(encoded string, associated []byte) ([]byte, error)
}

type SecureStoreConfig struct {
	SessionDuration time.Duration
	Clock           func() time.Time
}

// SecureStoreService owns session lifecycle and encryption at rest for
// per-user payloads. Ciphertext and plaintext never reach the logs.
type SecureStoreService struct {
	sessions    SessionRepository
	userData    UserDataRepository
	sealer      Sealer
	config      SecureStoreConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewSecureStoreService(sessions SessionRepository, userData UserDataRepository, sealer Sealer, config SecureStoreConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SecureStoreService {
	if config.SessionDuration <= 0 {
		config.SessionDuration = 24 * time.Hour
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &SecureStoreService{
		sessions:    sessions,
		userData:    userData,
		sealer:      sealer,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// SessionDuration is also the cookie Max-Age
func (s *SecureStoreService) SessionDuration() time.Duration {
	return s.config.SessionDuration
}

// CreateSession issues a fresh random token for userID. The returned
// session carries the raw token; only its hash is stored.
func (s *SecureStoreService) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", models.ErrBadRequest)
	}

	token, hash, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.config.Clock().UTC()
	session := &models.Session{
		Token:     token,
		TokenHash: hash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionDuration),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	s.auditLogger.LogSessionEvent(ctx, pkglogger.EventSessionCreated, userID, "")
	return session, nil
}

// ValidateSession returns the live session for token. Absent, malformed and
// expired tokens all yield ErrInvalidSession; an expired record is deleted
// on the spot.
func (s *SecureStoreService) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	if err := auth.ValidateSessionToken(token); err != nil {
		return nil, models.ErrInvalidSession
	}
	hash := auth.HashSessionToken(token)

	session, err := s.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidSession
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}

	if session.IsExpired(s.config.Clock()) {
		if err := s.sessions.Delete(ctx, hash); err != nil {
			s.logger.Warn("failed to delete expired session",
				slog.String("user_id", session.UserID),
				slog.Any("error", err))
		}
		return nil, models.ErrInvalidSession
	}

	return session, nil
}

// ClearSession deletes the record for token if there is one
func (s *SecureStoreService) ClearSession(ctx context.Context, token string) error {
	if auth.ValidateSessionToken(token) != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, auth.HashSessionToken(token)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	s.auditLogger.LogSessionEvent(ctx, pkglogger.EventSessionCleared, "", "")
	return nil
}

// SweepExpiredSessions deletes every session whose expiry has passed
func (s *SecureStoreService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.config.Clock())
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	return n, nil
}

func associatedData(userID, kind string) []byte {
	return []byte(userID + "\x00" + kind)
}

// seal encrypts plaintext bound to (userID, kind) so a ciphertext copied to
// another user or kind fails authentication
func (s *SecureStoreService) seal(ctx context.Context, userID, kind string, plaintext []byte) error {
	ciphertext, err := s.sealer.Encrypt(plaintext, associatedData(userID, kind))
	if err != nil {
		return fmt.Errorf("encrypting %s data: %w", kind, err)
	}
	return s.userData.Upsert(ctx, &models.EncryptedUserData{
		UserID:     userID,
		Kind:       kind,
		Ciphertext: ciphertext,
		UpdatedAt:  s.config.Clock().UTC(),
	})
}

func (s *SecureStoreService) open(ctx context.Context, userID, kind string) ([]byte, error) {
	record, err := s.userData.Get(ctx, userID, kind)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.sealer.Decrypt(record.Ciphertext, associatedData(userID, kind))
	if err != nil {
		s.logger.Error("stored user data failed authentication",
			slog.String("user_id", userID),
			slog.String("kind", kind),
			slog.Any("error", err))
		return nil, err
	}
	return plaintext, nil
}

// SaveUserData serializes data to JSON and stores it encrypted
func (s *SecureStoreService) SaveUserData(ctx context.Context, userID string, data any) error {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serializing user data: %w", models.ErrBadRequest)
	}
	return s.seal(ctx, userID, models.UserDataKindProfile, plaintext)
}

// GetUserData returns the decrypted JSON payload. A missing record yields
// ErrNotFound; a payload that fails authentication yields a
// *models.DecryptionError and no data.
func (s *SecureStoreService) GetUserData(ctx context.Context, userID string) (json.RawMessage, error) {
	plaintext, err := s.open(ctx, userID, models.UserDataKindProfile)
	if err != nil {
		return nil, err
	}
	if !json.Valid(plaintext) {
		return nil, &models.DecryptionError{Reason: "payload is not valid JSON"}
	}
	return json.RawMessage(plaintext), nil
}

// ClearUserData removes every encrypted record the user owns
func (s *SecureStoreService) ClearUserData(ctx context.Context, userID string) error {
	if err := s.userData.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("clearing user data: %w", err)
	}
	s.auditLogger.LogSessionEvent(ctx, pkglogger.EventUserDataCleared, userID, "")
	return nil
}

// SaveBrokerCredentials stores creds encrypted under the local userID
func (s *SecureStoreService) SaveBrokerCredentials(ctx context.Context, userID string, creds *models.BrokerCredentials) error {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return s.seal(ctx, userID, models.UserDataKindBroker, plaintext)
}

// GetBrokerCredentials returns ErrNotFound when the user has no broker connection
func (s *SecureStoreService) GetBrokerCredentials(ctx context.Context, userID string) (*models.BrokerCredentials, error) {
	plaintext, err := s.open(ctx, userID, models.UserDataKindBroker)
	if err != nil {
		return nil, err
	}
	var creds models.BrokerCredentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, &models.DecryptionError{Reason: "broker credentials are malformed", Err: err}
	}
	return &creds, nil
}

func (s *SecureStoreService) ClearBrokerCredentials(ctx context.Context, userID string) error {
	return s.userData.Delete(ctx, userID, models.UserDataKindBroker)
}

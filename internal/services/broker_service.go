package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/tradeguard/internal/broker"
	"github.com/BradenHooton/tradeguard/internal/models"
	pkglogger "github.com/BradenHooton/tradeguard/pkg/logger"
)

// BrokerAPI is satisfied by *broker.Client
type BrokerAPI interface {
	RegisterUser(ctx context.Context, userID string) (*broker.RegisteredUser, error)
	Login(ctx context.Context, userID, userSecret string) (string, error)
	ListAccounts(ctx context.Context, userID, userSecret string) ([]broker.Account, error)
	DeleteUser(ctx context.Context, userID string) error
}

// BrokerCredentialStore is satisfied by SecureStoreService
type BrokerCredentialStore interface {
	SaveBrokerCredentials(ctx context.Context, userID string, creds *models.BrokerCredentials) error
	GetBrokerCredentials(ctx context.Context, userID string) (*models.BrokerCredentials, error)
	ClearBrokerCredentials(ctx context.Context, userID string) error
}

// BrokerService ties the broker client to encrypted credential storage.
// The per-user secret is only ever logged masked.
type BrokerService struct {
	api         BrokerAPI
	store       BrokerCredentialStore
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewBrokerService(api BrokerAPI, store BrokerCredentialStore, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *BrokerService {
	return &BrokerService{
		api:         api,
		store:       store,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Connect registers the user upstream on first use and returns the
// connection portal URI
func (s *BrokerService) Connect(ctx context.Context, userID string) (string, error) {
	creds, err := s.store.GetBrokerCredentials(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		creds, err = s.register(ctx, userID)
	}
	if err != nil {
		return "", err
	}

	redirectURI, err := s.api.Login(ctx, creds.UserID, creds.UserSecret)
	if err != nil {
		s.auditLogger.LogBrokerEvent(ctx, pkglogger.EventBrokerConnected, userID, false, nil)
		return "", err
	}

	s.auditLogger.LogBrokerEvent(ctx, pkglogger.EventBrokerConnected, userID, true, nil)
	return redirectURI, nil
}

func (s *BrokerService) register(ctx context.Context, userID string) (*models.BrokerCredentials, error) {
	registered, err := s.api.RegisterUser(ctx, userID)
	if err != nil {
		s.auditLogger.LogBrokerEvent(ctx, pkglogger.EventBrokerRegistered, userID, false, nil)
		return nil, err
	}

	creds := &models.BrokerCredentials{
		UserID:       registered.UserID,
		UserSecret:   registered.UserSecret,
		RegisteredAt: s.now().UTC(),
	}
	if err := s.store.SaveBrokerCredentials(ctx, userID, creds); err != nil {
		s.logger.Error("failed to store broker credentials",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, err
	}

	s.auditLogger.LogBrokerEvent(ctx, pkglogger.EventBrokerRegistered, userID, true, map[string]string{
		"user_secret": pkglogger.MaskSecret(creds.UserSecret),
	})
	return creds, nil
}

// Accounts lists the user's connected brokerage accounts
func (s *BrokerService) Accounts(ctx context.Context, userID string) ([]broker.Account, error) {
	creds, err := s.store.GetBrokerCredentials(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrBrokerNotConnected
		}
		return nil, err
	}
	return s.api.ListAccounts(ctx, creds.UserID, creds.UserSecret)
}

// Disconnect deletes the user upstream and then the local secret. It is a
// no-op for users without a connection.
func (s *BrokerService) Disconnect(ctx context.Context, userID string) error {
	creds, err := s.store.GetBrokerCredentials(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := s.api.DeleteUser(ctx, creds.UserID); err != nil {
		var authErr *broker.AuthError
		if !errors.As(err, &authErr) || authErr.Status != http.StatusNotFound {
			s.auditLogger.LogBrokerEvent(ctx, pkglogger.EventBrokerRemoved, userID, false, nil)
			return err
		}
	}

	if err := s.store.ClearBrokerCredentials(ctx, userID); err != nil {
		return err
	}
	s.auditLogger.LogBrokerEvent(ctx, pkglogger.EventBrokerRemoved, userID, true, nil)
	return nil
}

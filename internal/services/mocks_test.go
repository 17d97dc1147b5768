package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/tradeguard/internal/broker"
	"github.com/BradenHooton/tradeguard/internal/models"
)

// MockLoginAuditRepository records every audit row it is given
type MockLoginAuditRepository struct {
	RecordAttemptFunc func(ctx context.Context, attempt *models.LoginAttempt) error

	mu       sync.Mutex
	Recorded []*models.LoginAttempt
}

func (m *MockLoginAuditRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	row := *attempt
	m.Recorded = append(m.Recorded, &row)
	m.mu.Unlock()

	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	return nil
}

// MockUserRepository implements services.UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	CreateFunc     func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

// MockSessionRepository implements services.SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc         func(ctx context.Context, session *models.Session) error
	GetByTokenHashFunc func(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteFunc         func(ctx context.Context, tokenHash string) error
	DeleteExpiredFunc  func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	if m.GetByTokenHashFunc != nil {
		return m.GetByTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Delete(ctx context.Context, tokenHash string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tokenHash)
	}
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now)
	}
	return 0, nil
}

// MockSessionIssuer implements services.SessionIssuer for testing
type MockSessionIssuer struct {
	CreateSessionFunc func(ctx context.Context, userID string) (*models.Session, error)
	ClearSessionFunc  func(ctx context.Context, token string) error
}

func (m *MockSessionIssuer) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, userID)
	}
	return &models.Session{Token: "token", UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *MockSessionIssuer) ClearSession(ctx context.Context, token string) error {
	if m.ClearSessionFunc != nil {
		return m.ClearSessionFunc(ctx, token)
	}
	return nil
}

// MockBrokerAPI implements services.BrokerAPI for testing
type MockBrokerAPI struct {
	RegisterUserFunc func(ctx context.Context, userID string) (*broker.RegisteredUser, error)
	LoginFunc        func(ctx context.Context, userID, userSecret string) (string, error)
	ListAccountsFunc func(ctx context.Context, userID, userSecret string) ([]broker.Account, error)
	DeleteUserFunc   func(ctx context.Context, userID string) error

	RegisterCalls int
}

func (m *MockBrokerAPI) RegisterUser(ctx context.Context, userID string) (*broker.RegisteredUser, error) {
	m.RegisterCalls++
	if m.RegisterUserFunc != nil {
		return m.RegisterUserFunc(ctx, userID)
	}
	return &broker.RegisteredUser{UserID: userID, UserSecret: "broker-user-secret"}, nil
}

func (m *MockBrokerAPI) Login(ctx context.Context, userID, userSecret string) (string, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, userID, userSecret)
	}
	return "https://connect.broker.example/portal", nil
}

func (m *MockBrokerAPI) ListAccounts(ctx context.Context, userID, userSecret string) ([]broker.Account, error) {
	if m.ListAccountsFunc != nil {
		return m.ListAccountsFunc(ctx, userID, userSecret)
	}
	return []broker.Account{}, nil
}

func (m *MockBrokerAPI) DeleteUser(ctx context.Context, userID string) error {
	if m.DeleteUserFunc != nil {
		return m.DeleteUserFunc(ctx, userID)
	}
	return nil
}

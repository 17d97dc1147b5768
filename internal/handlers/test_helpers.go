package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/tradeguard/internal/auth"
	"github.com/BradenHooton/tradeguard/internal/broker"
	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/BradenHooton/tradeguard/internal/services"
	pkghttp "github.com/BradenHooton/tradeguard/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext marks the request as authenticated, as RequireSession would
func WithSessionContext(req *http.Request, userID, token string) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), userID, token))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc    func(ctx context.Context, req services.LoginRequest) (*models.Session, error)
	RegisterFunc func(ctx context.Context, email, password, name string) (*models.User, error)
	LogoutFunc   func(ctx context.Context, token string) error
}

func (m *MockAuthService) Login(ctx context.Context, req services.LoginRequest) (*models.Session, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, models.ErrUnauthorized
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, password, name)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

// MockSecureStore implements SecureStoreServiceInterface for testing
type MockSecureStore struct {
	CreateSessionFunc   func(ctx context.Context, userID string) (*models.Session, error)
	ValidateSessionFunc func(ctx context.Context, token string) (*models.Session, error)
	ClearSessionFunc    func(ctx context.Context, token string) error
	SaveUserDataFunc    func(ctx context.Context, userID string, data any) error
	GetUserDataFunc     func(ctx context.Context, userID string) (json.RawMessage, error)
	ClearUserDataFunc   func(ctx context.Context, userID string) error
}

func (m *MockSecureStore) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, userID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockSecureStore) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	if m.ValidateSessionFunc != nil {
		return m.ValidateSessionFunc(ctx, token)
	}
	return nil, models.ErrInvalidSession
}

func (m *MockSecureStore) ClearSession(ctx context.Context, token string) error {
	if m.ClearSessionFunc != nil {
		return m.ClearSessionFunc(ctx, token)
	}
	return nil
}

func (m *MockSecureStore) SaveUserData(ctx context.Context, userID string, data any) error {
	if m.SaveUserDataFunc != nil {
		return m.SaveUserDataFunc(ctx, userID, data)
	}
	return nil
}

func (m *MockSecureStore) GetUserData(ctx context.Context, userID string) (json.RawMessage, error) {
	if m.GetUserDataFunc != nil {
		return m.GetUserDataFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSecureStore) ClearUserData(ctx context.Context, userID string) error {
	if m.ClearUserDataFunc != nil {
		return m.ClearUserDataFunc(ctx, userID)
	}
	return nil
}

// MockBrokerService implements BrokerServiceInterface for testing
type MockBrokerService struct {
	ConnectFunc    func(ctx context.Context, userID string) (string, error)
	AccountsFunc   func(ctx context.Context, userID string) ([]broker.Account, error)
	DisconnectFunc func(ctx context.Context, userID string) error
}

func (m *MockBrokerService) Connect(ctx context.Context, userID string) (string, error) {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, userID)
	}
	return "", models.ErrInternalServer
}

func (m *MockBrokerService) Accounts(ctx context.Context, userID string) ([]broker.Account, error) {
	if m.AccountsFunc != nil {
		return m.AccountsFunc(ctx, userID)
	}
	return nil, models.ErrBrokerNotConnected
}

func (m *MockBrokerService) Disconnect(ctx context.Context, userID string) error {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx, userID)
	}
	return nil
}

package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/tradeguard/internal/handlers"
	"github.com/stretchr/testify/assert"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	up := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	tests := []struct {
		name       string
		checks     map[string]handlers.HealthChecker
		wantStatus int
		want       map[string]string
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
			want:       map[string]string{"status": "healthy"},
		},
		{
			name:       "all up",
			checks:     map[string]handlers.HealthChecker{"database": up, "attempts": up},
			wantStatus: http.StatusOK,
			want:       map[string]string{"status": "healthy", "database": "up", "attempts": "up"},
		},
		{
			name:       "one down",
			checks:     map[string]handlers.HealthChecker{"database": up, "attempts": down},
			wantStatus: http.StatusServiceUnavailable,
			want:       map[string]string{"status": "unhealthy", "database": "up", "attempts": "down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handlers.Health(tt.checks)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			var body map[string]string
			handlers.AssertJSONResponse(t, w, tt.wantStatus, &body)
			assert.Equal(t, tt.want, body)
		})
	}
}

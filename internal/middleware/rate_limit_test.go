package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/tradeguard/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr, xff string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_EnforcesLimit(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 3})(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "203.0.113.1:4000", "").Code, "request %d", i+1)
	}

	rec := hit(h, "203.0.113.1:4000", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body.Error)
}

func TestRateLimitByIP_IsolatesClients(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "203.0.113.1:4000", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "203.0.113.1:4000", "").Code)
	assert.Equal(t, http.StatusOK, hit(h, "203.0.113.2:4000", "").Code)
}

func TestRateLimitByIP_IgnoresSpoofedForwardingHeader(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "203.0.113.1:4000", "198.51.100.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "203.0.113.1:4000", "198.51.100.2").Code,
		"rotating X-Forwarded-For from an untrusted peer must not reset the bucket")
}

func TestRateLimitByIP_TrustedProxyKeysOnForwardedClient(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{
		RequestsPerMinute: 1,
		IPConfig:          pkghttp.NewIPConfig([]string{"10.0.0.0/8"}),
	})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.5:4000", "198.51.100.1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.5:4000", "198.51.100.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.5:4000", "198.51.100.1").Code)
}

func TestRateLimitByIP_DefaultsWhenUnset(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{})(okHandler())

	for i := 0; i < DefaultAuthRateLimit().RequestsPerMinute; i++ {
		require.Equal(t, http.StatusOK, hit(h, "203.0.113.9:4000", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "203.0.113.9:4000", "").Code)
}

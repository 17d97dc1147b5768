package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/tradeguard/pkg/http"
)

// HealthChecker is implemented by the storage backends and the attempt store
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Health reports 503 when any named dependency fails its check
func Health(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "healthy"}
		for name, check := range checks {
			if err := check.HealthCheck(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body[name] = "down"
				continue
			}
			body[name] = "up"
		}

		pkghttp.WriteJSON(w, status, body)
	}
}

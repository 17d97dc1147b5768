// Package metrics holds the Prometheus collectors for login throttling,
// session sweeps, broker signing and HTTP traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tradeguard"

// Login decision results
const (
	ResultAllowed   = "allowed"
	ResultLocked    = "locked"
	ResultFailOpen  = "fail_open"
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected" // 401, chain advances
	OutcomeFinal    = "final"    // non-401 failure, chain stops
	OutcomeError    = "error"    // transport error or cancellation
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	LoginDecisions        *prometheus.CounterVec
	LoginAttempts         *prometheus.CounterVec
	SessionsSwept         prometheus.Counter
	BrokerSigningAttempts *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
	HTTPDuration          *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LoginDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_decisions_total",
			Help:      "Login throttle decisions partitioned by result.",
		}, []string{"result"}),
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Recorded login attempts partitioned by outcome.",
		}, []string{"success"}),
		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the background sweep.",
		}),
		BrokerSigningAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_signing_attempts_total",
			Help:      "Upstream broker calls partitioned by signing method and outcome.",
		}, []string{"method", "outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests partitioned by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) LoginDecision(result string) {
	if m == nil {
		return
	}
	m.LoginDecisions.WithLabelValues(result).Inc()
}

func (m *Metrics) LoginAttempt(success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.LoginAttempts.WithLabelValues(label).Inc()
}

func (m *Metrics) Swept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsSwept.Add(float64(n))
}

func (m *Metrics) SigningAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.BrokerSigningAttempts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(seconds)
}

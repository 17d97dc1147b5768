package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLoginAttempt     = "login_attempt"
	EventLoginLocked      = "login_locked"
	EventSessionCreated   = "session_created"
	EventSessionCleared   = "session_cleared"
	EventUserDataCleared  = "user_data_cleared"
	EventBrokerRegistered = "broker_registered"
	EventBrokerConnected  = "broker_connected"
	EventBrokerRemoved    = "broker_removed"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit lines to a structured logger
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger, now: time.Now}
}

// LogAuthAttempt logs a login decision or outcome
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	al.log(ctx, "auth", event)
}

// LogSessionEvent logs session creation and teardown
func (al *AuditLogger) LogSessionEvent(ctx context.Context, eventType, userID, ipAddress string) {
	al.log(ctx, "session", AuditEvent{
		EventType: eventType,
		UserID:    userID,
		IPAddress: ipAddress,
		Success:   true,
	})
}

// LogBrokerEvent logs changes to a user's broker connection. Metadata values
// must already be masked.
func (al *AuditLogger) LogBrokerEvent(ctx context.Context, eventType, userID string, success bool, metadata map[string]string) {
	al.log(ctx, "broker", AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Success:   success,
		Metadata:  metadata,
	})
}

func (al *AuditLogger) log(ctx context.Context, auditType string, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

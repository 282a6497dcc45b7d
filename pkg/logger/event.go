package logger

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/farmguard/internal/models"
)

// EventLogger writes the structured-log half of a security event. The
// durable half lives in the security_events table.
type EventLogger struct {
	logger *slog.Logger
}

func NewEventLogger(logger *slog.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Log emits one line per event. Severity maps onto the slog level so
// high and critical events surface in error-level alerting on log shippers.
func (l *EventLogger) Log(ctx context.Context, event *models.SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security_event"),
		slog.String("event_type", event.EventType),
		slog.String("severity", string(event.Severity)),
		slog.String("description", event.Description),
	}
	if event.UserID != nil {
		attrs = append(attrs, slog.String("user_id", *event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if len(event.Metadata) > 0 {
		meta := make([]any, 0, len(event.Metadata))
		for k, v := range event.Metadata {
			meta = append(meta, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}

	l.logger.LogAttrs(ctx, levelFor(event.Severity), "security event", attrs...)
}

func levelFor(s models.Severity) slog.Level {
	switch s {
	case models.SeverityCritical, models.SeverityHigh:
		return slog.LevelError
	case models.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

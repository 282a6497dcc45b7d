package services

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/BradenHooton/farmguard/internal/metrics"
	"github.com/BradenHooton/farmguard/internal/models"
)

// Notifier delivers an alert to an external sink (pager, chat, mail relay).
type Notifier interface {
	Send(ctx context.Context, event *models.SecurityEvent) error
}

// LogNotifier is the default sink: it writes alerts to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, event *models.SecurityEvent) error {
	n.logger.ErrorContext(ctx, "security alert",
		slog.String("event_id", event.ID),
		slog.String("event_type", event.EventType),
		slog.String("severity", string(event.Severity)),
		slog.String("description", event.Description),
	)
	return nil
}

// AlertDispatcher is the fire-and-forget handoff between the event log and
// a Notifier. Events are queued without blocking the caller; when the queue
// is full they are dropped and counted.
type AlertDispatcher struct {
	queue    chan *models.SecurityEvent
	limiter  *rate.Limiter
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewAlertDispatcher creates a dispatcher delivering at most perMinute
// alerts a minute. perMinute <= 0 disables throttling.
func NewAlertDispatcher(notifier Notifier, queueSize, perMinute int, m *metrics.Metrics, logger *slog.Logger) *AlertDispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}

	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}

	return &AlertDispatcher{
		queue:    make(chan *models.SecurityEvent, queueSize),
		limiter:  rate.NewLimiter(limit, burst),
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// Notify enqueues event for delivery.
func (d *AlertDispatcher) Notify(event *models.SecurityEvent) {
	select {
	case d.queue <- event:
	default:
		d.metrics.AlertDropped()
		d.logger.Warn("alert queue full, dropping alert",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.EventType),
		)
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *AlertDispatcher) Run(ctx context.Context) {
	d.logger.Info("alert dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("alert dispatcher stopped")
			return
		case event := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			if err := d.notifier.Send(ctx, event); err != nil {
				d.logger.Error("failed to deliver alert",
					slog.String("event_id", event.ID),
					slog.Any("error", err),
				)
			}
		}
	}
}

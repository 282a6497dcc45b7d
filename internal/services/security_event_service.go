package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/farmguard/internal/metrics"
	"github.com/BradenHooton/farmguard/internal/models"
	pkglogger "github.com/BradenHooton/farmguard/pkg/logger"
)

const (
	defaultEventListLimit = 50
	maxEventListLimit     = 200
)

// SecurityEventRepository defines the durable operations on the event log
type SecurityEventRepository interface {
	Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	GetByID(ctx context.Context, id string) (*models.SecurityEvent, error)
	Resolve(ctx context.Context, id, resolvedBy string, at time.Time) (*models.SecurityEvent, bool, error)
	List(ctx context.Context, filter models.SecurityEventFilter) ([]*models.SecurityEvent, error)
}

// Alerter receives high and critical events. Notify must not block.
type Alerter interface {
	Notify(event *models.SecurityEvent)
}

// EventRecorder is what the guard, limiter, validator and scanner need to
// append to the security event log.
type EventRecorder interface {
	LogEvent(ctx context.Context, event *models.SecurityEvent) error
}

// SecurityEventService handles security events with dual-write pattern (slog + database)
type SecurityEventService struct {
	repo        SecurityEventRepository
	eventLogger *pkglogger.EventLogger
	alerter     Alerter
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewSecurityEventService creates a new SecurityEventService. alerter may be nil.
func NewSecurityEventService(repo SecurityEventRepository, eventLogger *pkglogger.EventLogger, alerter Alerter, m *metrics.Metrics, logger *slog.Logger) *SecurityEventService {
	return &SecurityEventService{
		repo:        repo,
		eventLogger: eventLogger,
		alerter:     alerter,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// LogEvent writes event to the structured log, persists it, and hands high
// and critical events to the alerter. Persistence errors are returned.
func (s *SecurityEventService) LogEvent(ctx context.Context, event *models.SecurityEvent) error {
	if !event.Severity.Valid() || event.EventType == "" {
		return fmt.Errorf("%w: invalid security event", models.ErrBadRequest)
	}
	if event.Metadata == nil {
		event.Metadata = models.EventMetadata{}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}

	// Dual-write: immediate slog output
	s.eventLogger.Log(ctx, event)

	created, err := s.repo.Create(ctx, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist security event",
			slog.String("event_type", event.EventType),
			slog.Any("error", err),
		)
		return fmt.Errorf("persist security event: %w", err)
	}

	s.metrics.SecurityEvent(created.EventType, string(created.Severity))

	if created.Severity.Alertable() && s.alerter != nil {
		s.alerter.Notify(created)
	}

	return nil
}

// Resolve marks an event resolved. Resolving an already-resolved event
// returns it unchanged.
func (s *SecurityEventService) Resolve(ctx context.Context, id, resolvedBy string) (*models.SecurityEvent, error) {
	if resolvedBy == "" {
		return nil, fmt.Errorf("%w: resolver is required", models.ErrBadRequest)
	}

	event, changed, err := s.repo.Resolve(ctx, id, resolvedBy, s.now())
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.InfoContext(ctx, "security event resolved",
			slog.String("event_id", id),
			slog.String("resolved_by", resolvedBy),
		)
	}

	return event, nil
}

func (s *SecurityEventService) Get(ctx context.Context, id string) (*models.SecurityEvent, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns events matching filter, newest first.
func (s *SecurityEventService) List(ctx context.Context, filter models.SecurityEventFilter) ([]*models.SecurityEvent, error) {
	if filter.Severity != "" && !filter.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", models.ErrBadRequest, filter.Severity)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultEventListLimit
	}
	if filter.Limit > maxEventListLimit {
		filter.Limit = maxEventListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return s.repo.List(ctx, filter)
}

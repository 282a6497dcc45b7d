package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/farmguard/internal/cache"
	"github.com/BradenHooton/farmguard/internal/metrics"
	"github.com/BradenHooton/farmguard/internal/models"
)

// Rate limit periods, checked in this order.
const (
	PeriodPerMinute = "per_minute"
	PeriodPerHour   = "per_hour"
	PeriodPerDay    = "per_day"
)

var ratePeriods = []struct {
	name   string
	window time.Duration
}{
	{PeriodPerMinute, time.Minute},
	{PeriodPerHour, time.Hour},
	{PeriodPerDay, 24 * time.Hour},
}

// Endpoints with stricter budgets than the default.
const (
	EndpointLogin         = "/api/v1/auth/login"
	EndpointRegister      = "/api/v1/auth/register"
	EndpointPasswordReset = "/api/v1/auth/password-reset"
	EndpointMessaging     = "/api/v1/messaging"
)

// RateLimits maps a period name to its ceiling.
type RateLimits map[string]int

// RateLimitPolicy holds the default ceilings and the per-endpoint overrides.
// An override replaces the defaults for that endpoint entirely.
type RateLimitPolicy struct {
	Defaults  RateLimits
	Overrides map[string]RateLimits
}

// DefaultRateLimitPolicy returns the standard override table on top of the
// given defaults.
func DefaultRateLimitPolicy(perMinute, perHour, perDay int) RateLimitPolicy {
	return RateLimitPolicy{
		Defaults: RateLimits{
			PeriodPerMinute: perMinute,
			PeriodPerHour:   perHour,
			PeriodPerDay:    perDay,
		},
		Overrides: map[string]RateLimits{
			EndpointLogin:         {PeriodPerMinute: 5, PeriodPerHour: 20},
			EndpointRegister:      {PeriodPerMinute: 3, PeriodPerHour: 10},
			EndpointPasswordReset: {PeriodPerMinute: 2, PeriodPerHour: 5},
			EndpointMessaging:     {PeriodPerMinute: 30, PeriodPerHour: 500},
		},
	}
}

// LimitsFor returns the ceilings that apply to endpoint. Overrides match the
// exact path; subpaths get the defaults.
func (p RateLimitPolicy) LimitsFor(endpoint string) RateLimits {
	if limits, ok := p.Overrides[normalizeEndpoint(endpoint)]; ok {
		return limits
	}
	return p.Defaults
}

func normalizeEndpoint(endpoint string) string {
	if len(endpoint) > 1 {
		return strings.TrimRight(endpoint, "/")
	}
	return endpoint
}

// RateLimitViolationRepository is the audit trail of rejections
type RateLimitViolationRepository interface {
	Upsert(ctx context.Context, identifier, endpoint, limitType string, at time.Time) (*models.RateLimitViolation, error)
}

// RequestInfo carries the caller details recorded with a violation.
type RequestInfo struct {
	UserID    *string
	IPAddress string
	UserAgent string
}

// RateLimitService enforces fixed-window request budgets per
// (identifier, endpoint, period).
type RateLimitService struct {
	counters   cache.Store
	violations RateLimitViolationRepository
	events     EventRecorder
	policy     RateLimitPolicy
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(counters cache.Store, violations RateLimitViolationRepository, events EventRecorder, policy RateLimitPolicy, m *metrics.Metrics, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		counters:   counters,
		violations: violations,
		events:     events,
		policy:     policy,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

func counterKey(identifier, endpoint, period string) string {
	return fmt.Sprintf("rate_limit:%s:%s:%s", identifier, endpoint, period)
}

// IsRateLimited reports whether the request must be rejected. Counters are
// read first and only incremented when the request is admitted, so a
// rejected request costs nothing. Two concurrent requests can both pass
// the read at limit-1, admitting at most limit+1.
//
// Counter reads and increments fail open. Recording a violation is part of
// the decision, so those failures are returned.
func (s *RateLimitService) IsRateLimited(ctx context.Context, identifier, endpoint string, info RequestInfo) (bool, error) {
	endpoint = normalizeEndpoint(endpoint)
	limits := s.policy.LimitsFor(endpoint)

	for _, period := range ratePeriods {
		limit, ok := limits[period.name]
		if !ok {
			continue
		}

		count, err := s.counters.Get(ctx, counterKey(identifier, endpoint, period.name))
		if err != nil {
			s.logger.WarnContext(ctx, "rate limit counter unavailable, allowing request",
				slog.String("endpoint", endpoint),
				slog.Any("error", err),
			)
			s.metrics.RateLimitDecision(false)
			return false, nil
		}

		if count >= int64(limit) {
			if err := s.recordViolation(ctx, identifier, endpoint, period.name, limit, info); err != nil {
				return true, err
			}
			s.metrics.RateLimitDecision(true)
			return true, nil
		}
	}

	for _, period := range ratePeriods {
		if _, err := s.counters.Incr(ctx, counterKey(identifier, endpoint, period.name), period.window); err != nil {
			s.logger.WarnContext(ctx, "failed to increment rate limit counter",
				slog.String("endpoint", endpoint),
				slog.String("period", period.name),
				slog.Any("error", err),
			)
		}
	}

	s.metrics.RateLimitDecision(false)
	return false, nil
}

func (s *RateLimitService) recordViolation(ctx context.Context, identifier, endpoint, period string, limit int, info RequestInfo) error {
	if _, err := s.violations.Upsert(ctx, identifier, endpoint, period, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "failed to record rate limit violation", slog.Any("error", err))
		return fmt.Errorf("record rate limit violation: %w", err)
	}

	s.logger.WarnContext(ctx, "rate limit exceeded",
		slog.String("identifier", identifier),
		slog.String("endpoint", endpoint),
		slog.String("period", period),
	)

	return s.events.LogEvent(ctx, &models.SecurityEvent{
		UserID:      info.UserID,
		EventType:   models.EventRateLimitExceeded,
		Severity:    models.SeverityMedium,
		Description: "Rate limit exceeded for " + endpoint,
		IPAddress:   info.IPAddress,
		UserAgent:   info.UserAgent,
		Metadata: models.EventMetadata{
			"identifier": identifier,
			"endpoint":   endpoint,
			"period":     period,
			"limit":      limit,
		},
	})
}

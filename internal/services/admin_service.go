package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/farmguard/internal/models"
)

// AdminLockoutRepository is the subset of lockout operations the admin
// views need.
type AdminLockoutRepository interface {
	ListActive(ctx context.Context, limit, offset int) ([]*models.AccountLockout, error)
}

// LockoutView is an active lockout as shown to administrators.
type LockoutView struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	IPAddress          string    `json:"ip_address"`
	FailedAttemptCount int       `json:"failed_attempt_count"`
	LockedAt           time.Time `json:"locked_at"`
	LockedUntil        time.Time `json:"locked_until"`
	InForce            bool      `json:"in_force"`
}

// AdminService aggregates data for admin security endpoints.
type AdminService struct {
	lockouts        AdminLockoutRepository
	lockoutDuration time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(lockouts AdminLockoutRepository, lockoutDuration time.Duration, logger *slog.Logger) *AdminService {
	return &AdminService{
		lockouts:        lockouts,
		lockoutDuration: lockoutDuration,
		logger:          logger,
		now:             time.Now,
	}
}

// ListActiveLockouts returns lockouts still flagged active. Rows whose
// window has elapsed but have not been swept yet report InForce=false.
// limit is clamped to a maximum of 100.
func (s *AdminService) ListActiveLockouts(ctx context.Context, limit, offset int) ([]LockoutView, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	lockouts, err := s.lockouts.ListActive(ctx, limit, offset)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list active lockouts", slog.Any("error", err))
		return nil, err
	}

	now := s.now()
	views := make([]LockoutView, 0, len(lockouts))
	for _, l := range lockouts {
		views = append(views, LockoutView{
			ID:                 l.ID,
			UserID:             l.UserID,
			IPAddress:          l.IPAddress,
			FailedAttemptCount: l.FailedAttemptCount,
			LockedAt:           l.LockedAt,
			LockedUntil:        l.LockedUntil(s.lockoutDuration),
			InForce:            l.IsInForce(now, s.lockoutDuration),
		})
	}
	return views, nil
}

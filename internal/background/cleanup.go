package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LockoutSweeper releases lockouts whose window has elapsed.
type LockoutSweeper interface {
	DeactivateLockedBefore(ctx context.Context, cutoff, at time.Time) (int64, error)
}

// LoginAttemptPurger deletes login attempts past retention.
type LoginAttemptPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiredKeyDeactivator flips expired API keys to inactive.
type ExpiredKeyDeactivator interface {
	DeactivateExpiredKeys(ctx context.Context) (int64, error)
}

// CleanupConfig controls what each sweep touches.
type CleanupConfig struct {
	Interval              time.Duration
	LockoutDuration       time.Duration
	LoginAttemptRetention time.Duration
}

// SweepResult counts the rows each task changed.
type SweepResult struct {
	LockoutsReleased     int64 `json:"lockouts_released"`
	APIKeysDeactivated   int64 `json:"api_keys_deactivated"`
	LoginAttemptsDeleted int64 `json:"login_attempts_deleted"`
}

// CleanupManager periodically releases elapsed lockouts, deactivates expired
// API keys and purges old login attempts. Lockouts are also released lazily
// at login time; the sweep keeps the active flag accurate for dashboards.
type CleanupManager struct {
	lockouts LockoutSweeper
	attempts LoginAttemptPurger
	apiKeys  ExpiredKeyDeactivator
	config   CleanupConfig
	logger   *slog.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	lockouts LockoutSweeper,
	attempts LoginAttemptPurger,
	apiKeys ExpiredKeyDeactivator,
	config CleanupConfig,
	logger *slog.Logger,
) *CleanupManager {
	return &CleanupManager{
		lockouts: lockouts,
		attempts: attempts,
		apiKeys:  apiKeys,
		config:   config,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.config.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := cm.RunOnce(cleanupCtx)
	if err != nil {
		cm.logger.Error("cleanup finished with errors", slog.Any("error", err))
	}

	if result.LockoutsReleased > 0 || result.APIKeysDeactivated > 0 || result.LoginAttemptsDeleted > 0 {
		cm.logger.Info("cleanup completed",
			slog.Int64("lockouts_released", result.LockoutsReleased),
			slog.Int64("api_keys_deactivated", result.APIKeysDeactivated),
			slog.Int64("login_attempts_deleted", result.LoginAttemptsDeleted),
		)
	}
}

// RunOnce performs a single sweep. Every task runs even when an earlier one
// fails; the errors are joined.
func (cm *CleanupManager) RunOnce(ctx context.Context) (SweepResult, error) {
	var (
		result SweepResult
		errs   []error
		now    = cm.now()
	)

	released, err := cm.lockouts.DeactivateLockedBefore(ctx, now.Add(-cm.config.LockoutDuration), now)
	if err != nil {
		errs = append(errs, fmt.Errorf("release elapsed lockouts: %w", err))
	}
	result.LockoutsReleased = released

	deactivated, err := cm.apiKeys.DeactivateExpiredKeys(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	result.APIKeysDeactivated = deactivated

	if cm.config.LoginAttemptRetention > 0 {
		deleted, err := cm.attempts.DeleteOlderThan(ctx, now.Add(-cm.config.LoginAttemptRetention))
		if err != nil {
			errs = append(errs, fmt.Errorf("purge login attempts: %w", err))
		}
		result.LoginAttemptsDeleted = deleted
	}

	return result, errors.Join(errs...)
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

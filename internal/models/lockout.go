package models

import "time"

// AccountLockout records a temporary lock placed on an account after too many
// failed logins. At most one lockout per user is active at a time.
type AccountLockout struct {
	ID                 string     `db:"id"`
	UserID             string     `db:"user_id"`
	IPAddress          string     `db:"ip_address"`
	FailedAttemptCount int        `db:"failed_attempt_count"`
	LockedAt           time.Time  `db:"locked_at"`
	UnlockedAt         *time.Time `db:"unlocked_at"`
	UnlockedBy         *string    `db:"unlocked_by"`
	Active             bool       `db:"active"`
}

// LockedUntil returns the moment the lockout lapses for the given duration.
func (l *AccountLockout) LockedUntil(duration time.Duration) time.Time {
	return l.LockedAt.Add(duration)
}

// IsInForce reports whether the lockout still blocks logins at now.
func (l *AccountLockout) IsInForce(now time.Time, duration time.Duration) bool {
	return l.Active && now.Before(l.LockedUntil(duration))
}

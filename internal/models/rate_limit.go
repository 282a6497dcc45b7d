package models

import "time"

// RateLimitViolation is the audit trail of limiter rejections. One row per
// (identifier, endpoint, limit type); repeats increment ViolationCount.
type RateLimitViolation struct {
	ID              string    `db:"id"`
	Identifier      string    `db:"identifier"`
	Endpoint        string    `db:"endpoint"`
	LimitType       string    `db:"limit_type"`
	ViolationCount  int       `db:"violation_count"`
	FirstViolatedAt time.Time `db:"first_violated_at"`
	LastViolatedAt  time.Time `db:"last_violated_at"`
}

package models

import "time"

type LoginOutcome string

const (
	LoginOutcomeSuccess LoginOutcome = "success"
	LoginOutcomeFailed  LoginOutcome = "failed"
	LoginOutcomeBlocked LoginOutcome = "blocked"
)

// Failure reasons recorded on LoginAttempt rows. They never reach the client.
const (
	FailureReasonInvalidCredentials = "invalid_credentials"
	FailureReasonAccountLocked      = "account_locked"
	FailureReasonRateLimited        = "rate_limited"
	FailureReasonInactive           = "inactive"
)

// LoginAttempt represents a single login attempt. Rows are append-only.
type LoginAttempt struct {
	ID            string       `db:"id"`
	UserID        *string      `db:"user_id"`
	Email         string       `db:"email"`
	IPAddress     string       `db:"ip_address"`
	UserAgent     string       `db:"user_agent"`
	Outcome       LoginOutcome `db:"outcome"`
	FailureReason *string      `db:"failure_reason"`
	AttemptTime   time.Time    `db:"attempt_time"`
}

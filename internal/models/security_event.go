package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alertable reports whether events of this severity are handed to the alert sink.
func (s Severity) Alertable() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Event types
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailed        = "login_failed"
	EventAccountLocked      = "account_locked"
	EventAccountUnlocked    = "account_unlocked"
	EventRateLimitExceeded  = "rate_limit_exceeded"
	EventDataBreachAttempt  = "data_breach_attempt"
	EventSuspiciousActivity = "suspicious_activity"
	EventFileUploadBlocked  = "file_upload_blocked"
	EventAPIKeyCreated      = "api_key_created"
	EventAPIKeyRevoked      = "api_key_revoked"
)

// SecurityEvent is an append-only audit record. Resolution is the only
// mutation it ever undergoes.
type SecurityEvent struct {
	ID          string        `json:"id"`
	UserID      *string       `json:"user_id,omitempty"`
	EventType   string        `json:"event_type"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`
	IPAddress   string        `json:"ip_address,omitempty"`
	UserAgent   string        `json:"user_agent,omitempty"`
	Metadata    EventMetadata `json:"metadata"`
	CreatedAt   time.Time     `json:"created_at"`
	Resolved    bool          `json:"resolved"`
	ResolvedBy  *string       `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// Resolve marks the event resolved. Resolving twice keeps the first
// resolver and timestamp and reports false.
func (e *SecurityEvent) Resolve(by string, at time.Time) bool {
	if e.Resolved {
		return false
	}
	e.Resolved = true
	e.ResolvedBy = &by
	e.ResolvedAt = &at
	return true
}

// SecurityEventFilter narrows event listings.
type SecurityEventFilter struct {
	Severity  Severity
	EventType string
	Resolved  *bool
	Limit     int
	Offset    int
}

// EventMetadata holds additional context for security events
type EventMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (m *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(EventMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*m = EventMetadata(decoded)
	return nil
}

// Value implements driver.Valuer for JSONB
func (m EventMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(m))
}

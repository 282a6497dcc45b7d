package models

import (
	"time"
)

// APIKey represents an API key for service account authentication.
// Keys are never hard-deleted; Active=false or expiry invalidates them.
type APIKey struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	KeyHash     string     `json:"-"`
	KeyPrefix   string     `json:"key_prefix"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	Active      bool       `json:"active"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// GeneratedAPIKey represents the response when creating a new API key (includes plaintext)
type GeneratedAPIKey struct {
	PlainKey string  `json:"key"` // shown once
	APIKey   *APIKey `json:"api_key"`
}

// IsUsable returns true if the key can authenticate at now.
func (k *APIKey) IsUsable(now time.Time) bool {
	return k.Active && !k.IsExpired(now)
}

// IsExpired returns true if the API key has expired
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// HasPermission returns true if the key grants perm, directly or via wildcard.
func (k *APIKey) HasPermission(perm string) bool {
	return HasPermission(k.Permissions, perm)
}

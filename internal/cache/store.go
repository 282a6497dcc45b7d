// Package cache provides the ephemeral key-value store used for rate-limit
// counters and short-lived failed-login hints.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/farmguard/internal/models"
)

// ErrUnavailable is returned when the store cannot be reached or times out.
var ErrUnavailable = fmt.Errorf("ephemeral store: %w", models.ErrStoreUnavailable)

// Store is a TTL-capable counter store. A missing or expired key reads as 0.
type Store interface {
	Get(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	// Incr atomically increments key. When the key does not exist it is
	// created with value 1 and the given ttl; an existing key keeps its ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

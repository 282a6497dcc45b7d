package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     int64
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// defaultSweepInterval bounds how often writes scan the whole map for
// expired entries.
const defaultSweepInterval = time.Minute

// MemoryStore is a process-local Store. It is used when no Redis address is
// configured and in tests, where the clock can be driven by hand. Expired
// entries are evicted on read and by a periodic sweep piggybacked on writes,
// so keys that are never read again do not accumulate.
type MemoryStore struct {
	mu            sync.Mutex
	items         map[string]*entry
	now           func() time.Time
	sweepInterval time.Duration
	lastSweep     time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithSweepInterval sets how often writes evict expired entries.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.sweepInterval = d
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		items:         make(map[string]*entry),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSweep = s.now()
	return s
}

// maybeSweep evicts every expired entry once per sweep interval.
// Caller must hold s.mu.
func (s *MemoryStore) maybeSweep() {
	now := s.now()
	if now.Sub(s.lastSweep) < s.sweepInterval {
		return
	}
	s.lastSweep = now
	for key, e := range s.items {
		if e.expired(now) {
			delete(s.items, key)
		}
	}
}

// live returns the entry for key, evicting it if it has expired.
// Caller must hold s.mu.
func (s *MemoryStore) live(key string) *entry {
	e, ok := s.items[key]
	if !ok {
		return nil
	}
	if e.expired(s.now()) {
		delete(s.items, key)
		return nil
	}
	return e
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		return e.value, nil
	}
	return 0, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep()
	s.items[key] = &entry{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep()
	e := s.live(key)
	if e == nil {
		e = &entry{expiresAt: s.expiry(ttl)}
		s.items[key] = e
	}
	e.value++
	return e.value, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

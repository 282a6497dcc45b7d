package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/farmguard/internal/cache"
	"github.com/BradenHooton/farmguard/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ── event recorder ───────────────────────────────────────────────────────────

type recordingEvents struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
	err    error
}

func (r *recordingEvents) LogEvent(_ context.Context, event *models.SecurityEvent) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) ofType(eventType string) []*models.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SecurityEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ── ephemeral store ──────────────────────────────────────────────────────────

type failingStore struct{}

func (failingStore) Get(context.Context, string) (int64, error) {
	return 0, cache.ErrUnavailable
}

func (failingStore) Set(context.Context, string, int64, time.Duration) error {
	return cache.ErrUnavailable
}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, cache.ErrUnavailable
}

func (failingStore) Delete(context.Context, string) error {
	return cache.ErrUnavailable
}

func (failingStore) Ping(context.Context) error {
	return cache.ErrUnavailable
}

// ── user repository ──────────────────────────────────────────────────────────

type mockUserRepo struct {
	getByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	getByEmailFunc func(ctx context.Context, email string) (*models.User, error)
}

func usersOf(users ...*models.User) *mockUserRepo {
	return &mockUserRepo{
		getByIDFunc: func(_ context.Context, id string) (*models.User, error) {
			for _, u := range users {
				if u.ID == id {
					return u, nil
				}
			}
			return nil, models.ErrNotFound
		},
		getByEmailFunc: func(_ context.Context, email string) (*models.User, error) {
			for _, u := range users {
				if u.Email == email {
					return u, nil
				}
			}
			return nil, models.ErrNotFound
		},
	}
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.getByEmailFunc(ctx, email)
}

// ── login attempts ───────────────────────────────────────────────────────────

type memAttemptRepo struct {
	mu       sync.Mutex
	attempts []*models.LoginAttempt
	countErr error
}

func (m *memAttemptRepo) Record(_ context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memAttemptRepo) count(match func(a *models.LoginAttempt) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if match(a) {
			n++
		}
	}
	return n
}

func (m *memAttemptRepo) CountFailedByEmailSince(_ context.Context, email string, since time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.count(func(a *models.LoginAttempt) bool {
		return a.Email == email && a.Outcome == models.LoginOutcomeFailed && a.AttemptTime.After(since)
	}), nil
}

func (m *memAttemptRepo) CountFailedByIPSince(_ context.Context, ip string, since time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.count(func(a *models.LoginAttempt) bool {
		return a.IPAddress == ip && a.Outcome == models.LoginOutcomeFailed && a.AttemptTime.After(since)
	}), nil
}

func (m *memAttemptRepo) GetLastSuccessTime(_ context.Context, email string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for _, a := range m.attempts {
		if a.Email == email && a.Outcome == models.LoginOutcomeSuccess {
			if last == nil || a.AttemptTime.After(*last) {
				t := a.AttemptTime
				last = &t
			}
		}
	}
	return last, nil
}

func (m *memAttemptRepo) outcomes() []models.LoginOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LoginOutcome, 0, len(m.attempts))
	for _, a := range m.attempts {
		out = append(out, a.Outcome)
	}
	return out
}

// ── lockouts ─────────────────────────────────────────────────────────────────

// memLockoutRepo mirrors the partial unique index on active lockouts.
type memLockoutRepo struct {
	mu       sync.Mutex
	lockouts []*models.AccountLockout
	getErr   error
}

func (m *memLockoutRepo) GetActive(_ context.Context, userID string) (*models.AccountLockout, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lockouts {
		if l.UserID == userID && l.Active {
			return l, nil
		}
	}
	return nil, nil
}

func (m *memLockoutRepo) CreateActive(_ context.Context, lockout *models.AccountLockout) (*models.AccountLockout, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lockouts {
		if l.UserID == lockout.UserID && l.Active {
			return l, false, nil
		}
	}
	lockout.ID = "lockout-" + lockout.UserID + "-" + lockout.LockedAt.Format(time.RFC3339Nano)
	m.lockouts = append(m.lockouts, lockout)
	return lockout, true, nil
}

func (m *memLockoutRepo) Deactivate(_ context.Context, id string, at time.Time, by *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lockouts {
		if l.ID == id && l.Active {
			l.Active = false
			l.UnlockedAt = &at
			l.UnlockedBy = by
			return true, nil
		}
	}
	return false, nil
}

func (m *memLockoutRepo) ListActive(_ context.Context, limit, offset int) ([]*models.AccountLockout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AccountLockout
	for _, l := range m.lockouts {
		if l.Active {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLockoutRepo) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lockouts)
}

// ── rate limit violations ────────────────────────────────────────────────────

type mockViolationRepo struct {
	upsertFunc func(ctx context.Context, identifier, endpoint, limitType string, at time.Time) (*models.RateLimitViolation, error)
	calls      []string
}

func (m *mockViolationRepo) Upsert(ctx context.Context, identifier, endpoint, limitType string, at time.Time) (*models.RateLimitViolation, error) {
	m.calls = append(m.calls, limitType)
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, identifier, endpoint, limitType, at)
	}
	return &models.RateLimitViolation{Identifier: identifier, Endpoint: endpoint, LimitType: limitType, ViolationCount: len(m.calls)}, nil
}

// ── file scans ───────────────────────────────────────────────────────────────

type memFileScanRepo struct {
	mu              sync.Mutex
	scans           map[string]*models.FileUploadScan
	completed       []models.FileUploadScan
	createErr       error
	priorSuspicious int
}

func newMemFileScanRepo() *memFileScanRepo {
	return &memFileScanRepo{scans: make(map[string]*models.FileUploadScan)}
}

func (m *memFileScanRepo) Create(_ context.Context, scan *models.FileUploadScan) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	scan.ID = "scan-" + string(rune('a'+len(m.scans)))
	stored := *scan
	m.scans[scan.ID] = &stored
	return nil
}

func (m *memFileScanRepo) Complete(_ context.Context, scan *models.FileUploadScan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.scans[scan.ID]
	if !ok {
		return models.ErrNotFound
	}
	if stored.Status.Terminal() {
		return models.ErrInvalidTransition
	}
	*stored = *scan
	m.completed = append(m.completed, *scan)
	return nil
}

func (m *memFileScanRepo) CountSuspiciousByUserSince(_ context.Context, userID string, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.priorSuspicious
	for _, s := range m.completed {
		if s.UserID != nil && *s.UserID == userID && s.Status == models.ScanStatusSuspicious {
			n++
		}
	}
	return n, nil
}

// ── security events ──────────────────────────────────────────────────────────

type mockSecurityEventRepo struct {
	createFunc  func(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	getByIDFunc func(ctx context.Context, id string) (*models.SecurityEvent, error)
	resolveFunc func(ctx context.Context, id, resolvedBy string, at time.Time) (*models.SecurityEvent, bool, error)
	listFunc    func(ctx context.Context, filter models.SecurityEventFilter) ([]*models.SecurityEvent, error)
}

func (m *mockSecurityEventRepo) Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, event)
	}
	created := *event
	created.ID = "event-1"
	return &created, nil
}

func (m *mockSecurityEventRepo) GetByID(ctx context.Context, id string) (*models.SecurityEvent, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *mockSecurityEventRepo) Resolve(ctx context.Context, id, resolvedBy string, at time.Time) (*models.SecurityEvent, bool, error) {
	return m.resolveFunc(ctx, id, resolvedBy, at)
}

func (m *mockSecurityEventRepo) List(ctx context.Context, filter models.SecurityEventFilter) ([]*models.SecurityEvent, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return []*models.SecurityEvent{}, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (a *recordingAlerter) Notify(event *models.SecurityEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

// ── api keys ─────────────────────────────────────────────────────────────────

type mockAPIKeyRepo struct {
	createFunc            func(ctx context.Context, apiKey *models.APIKey) error
	getByHashFunc         func(ctx context.Context, keyHash string) (*models.APIKey, error)
	getByIDFunc           func(ctx context.Context, id string) (*models.APIKey, error)
	listByUserIDFunc      func(ctx context.Context, userID string, limit, offset int) ([]*models.APIKey, error)
	updateLastUsedFunc    func(ctx context.Context, id string, at time.Time) error
	deactivateFunc        func(ctx context.Context, id string, at time.Time) error
	deactivateExpiredFunc func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockAPIKeyRepo) Create(ctx context.Context, apiKey *models.APIKey) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, apiKey)
	}
	return nil
}

func (m *mockAPIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	if m.getByHashFunc != nil {
		return m.getByHashFunc(ctx, keyHash)
	}
	return nil, models.ErrNotFound
}

func (m *mockAPIKeyRepo) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *mockAPIKeyRepo) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.APIKey, error) {
	if m.listByUserIDFunc != nil {
		return m.listByUserIDFunc(ctx, userID, limit, offset)
	}
	return []*models.APIKey{}, nil
}

func (m *mockAPIKeyRepo) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	if m.updateLastUsedFunc != nil {
		return m.updateLastUsedFunc(ctx, id, at)
	}
	return nil
}

func (m *mockAPIKeyRepo) Deactivate(ctx context.Context, id string, at time.Time) error {
	if m.deactivateFunc != nil {
		return m.deactivateFunc(ctx, id, at)
	}
	return nil
}

func (m *mockAPIKeyRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.deactivateExpiredFunc != nil {
		return m.deactivateExpiredFunc(ctx, now)
	}
	return 0, nil
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/farmguard/internal/cache"
	"github.com/BradenHooton/farmguard/internal/models"
)

func newTestRateLimiter(t *testing.T, store cache.Store, violations *mockViolationRepo, events *recordingEvents) *RateLimitService {
	t.Helper()
	return NewRateLimitService(store, violations, events, DefaultRateLimitPolicy(60, 1000, 10000), nil, discardLogger())
}

func TestRateLimitService_FiveLoginsPerMinute(t *testing.T) {
	clock := newFakeClock()
	store := cache.NewMemoryStore(cache.WithClock(clock.Now))
	violations := &mockViolationRepo{}
	events := &recordingEvents{}
	svc := newTestRateLimiter(t, store, violations, events)
	ctx := context.Background()
	info := RequestInfo{IPAddress: "198.51.100.4"}

	for i := 1; i <= 5; i++ {
		limited, err := svc.IsRateLimited(ctx, "ip:198.51.100.4", EndpointLogin, info)
		require.NoError(t, err)
		assert.False(t, limited, "request %d", i)
		clock.Advance(5 * time.Second)
	}

	limited, err := svc.IsRateLimited(ctx, "ip:198.51.100.4", EndpointLogin, info)
	require.NoError(t, err)
	assert.True(t, limited)
	assert.Equal(t, []string{PeriodPerMinute}, violations.calls)

	rateEvents := events.ofType(models.EventRateLimitExceeded)
	require.Len(t, rateEvents, 1)
	assert.Equal(t, models.SeverityMedium, rateEvents[0].Severity)
	assert.Equal(t, "198.51.100.4", rateEvents[0].IPAddress)

	// A rejected request does not consume budget.
	count, err := store.Get(ctx, counterKey("ip:198.51.100.4", EndpointLogin, PeriodPerMinute))
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	clock.Advance(time.Minute)
	limited, err = svc.IsRateLimited(ctx, "ip:198.51.100.4", EndpointLogin, info)
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestRateLimitService_CounterAtCeilingIsLimitedBeforeIncrement(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()
	svc := newTestRateLimiter(t, store, &mockViolationRepo{}, &recordingEvents{})

	require.NoError(t, store.Set(ctx, counterKey("user:42", EndpointRegister, PeriodPerMinute), 3, time.Minute))

	limited, err := svc.IsRateLimited(ctx, "user:42", EndpointRegister, RequestInfo{})
	require.NoError(t, err)
	assert.True(t, limited)
}

func TestRateLimitService_HourlyCeilingApplies(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()
	violations := &mockViolationRepo{}
	svc := newTestRateLimiter(t, store, violations, &recordingEvents{})

	require.NoError(t, store.Set(ctx, counterKey("ip:1.2.3.4", EndpointLogin, PeriodPerHour), 20, time.Hour))

	limited, err := svc.IsRateLimited(ctx, "ip:1.2.3.4", EndpointLogin+"/", RequestInfo{})
	require.NoError(t, err)
	assert.True(t, limited)
	assert.Equal(t, []string{PeriodPerHour}, violations.calls)
}

func TestRateLimitService_FirstRequestIncrementsEveryPeriod(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()
	svc := newTestRateLimiter(t, store, &mockViolationRepo{}, &recordingEvents{})

	limited, err := svc.IsRateLimited(ctx, "ip:9.9.9.9", "/api/v1/products", RequestInfo{})
	require.NoError(t, err)
	assert.False(t, limited)

	for _, period := range []string{PeriodPerMinute, PeriodPerHour, PeriodPerDay} {
		count, err := store.Get(ctx, counterKey("ip:9.9.9.9", "/api/v1/products", period))
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, period)
	}
}

func TestRateLimitService_IdentifiersAreIndependent(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()
	svc := newTestRateLimiter(t, store, &mockViolationRepo{}, &recordingEvents{})

	for i := 0; i < 2; i++ {
		limited, err := svc.IsRateLimited(ctx, "ip:a", EndpointPasswordReset, RequestInfo{})
		require.NoError(t, err)
		require.False(t, limited)
	}
	limited, err := svc.IsRateLimited(ctx, "ip:a", EndpointPasswordReset, RequestInfo{})
	require.NoError(t, err)
	assert.True(t, limited)

	limited, err = svc.IsRateLimited(ctx, "ip:b", EndpointPasswordReset, RequestInfo{})
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestRateLimitService_StoreUnavailableFailsOpen(t *testing.T) {
	violations := &mockViolationRepo{}
	svc := newTestRateLimiter(t, failingStore{}, violations, &recordingEvents{})

	limited, err := svc.IsRateLimited(context.Background(), "ip:a", EndpointLogin, RequestInfo{})
	require.NoError(t, err)
	assert.False(t, limited)
	assert.Empty(t, violations.calls)
}

func TestRateLimitService_ViolationStoreFailureIsReturned(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()
	violations := &mockViolationRepo{upsertFunc: func(context.Context, string, string, string, time.Time) (*models.RateLimitViolation, error) {
		return nil, models.ErrStoreUnavailable
	}}
	svc := newTestRateLimiter(t, store, violations, &recordingEvents{})
	require.NoError(t, store.Set(ctx, counterKey("ip:a", EndpointLogin, PeriodPerMinute), 5, time.Minute))

	_, err := svc.IsRateLimited(ctx, "ip:a", EndpointLogin, RequestInfo{})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestRateLimitService_EventFailureIsReturned(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()
	svc := newTestRateLimiter(t, store, &mockViolationRepo{}, &recordingEvents{err: errors.New("down")})
	require.NoError(t, store.Set(ctx, counterKey("ip:a", EndpointLogin, PeriodPerMinute), 5, time.Minute))

	_, err := svc.IsRateLimited(ctx, "ip:a", EndpointLogin, RequestInfo{})
	assert.Error(t, err)
}

func TestRateLimitPolicy_LimitsFor(t *testing.T) {
	policy := DefaultRateLimitPolicy(60, 1000, 10000)

	tests := []struct {
		endpoint string
		want     RateLimits
	}{
		{EndpointLogin, RateLimits{PeriodPerMinute: 5, PeriodPerHour: 20}},
		{"/api/v1/auth/register/", RateLimits{PeriodPerMinute: 3, PeriodPerHour: 10}},
		{EndpointPasswordReset, RateLimits{PeriodPerMinute: 2, PeriodPerHour: 5}},
		{EndpointMessaging, RateLimits{PeriodPerMinute: 30, PeriodPerHour: 500}},
		{EndpointMessaging + "/threads/42", RateLimits{PeriodPerMinute: 60, PeriodPerHour: 1000, PeriodPerDay: 10000}},
		{"/api/v1/products", RateLimits{PeriodPerMinute: 60, PeriodPerHour: 1000, PeriodPerDay: 10000}},
		{"/", RateLimits{PeriodPerMinute: 60, PeriodPerHour: 1000, PeriodPerDay: 10000}},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.LimitsFor(tt.endpoint))
		})
	}
}

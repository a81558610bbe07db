package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
)

var testTiers = map[string]config.TierConfig{
	"free":  {HourlyLimit: 60, DailyLimit: 500},
	"tiny":  {HourlyLimit: 5, DailyLimit: 100},
	"daily": {HourlyLimit: Unlimited, DailyLimit: 3},
	"power": {HourlyLimit: 10000, DailyLimit: Unlimited},
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestLimiter(store Store, at time.Time) (*Limiter, *clock) {
	c := &clock{t: at}
	l := NewLimiter(store, NewTiers(testTiers, "free"), zap.NewNop())
	l.now = c.now
	return l, c
}

func TestLimiter_HourlyBoundary(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC)
	store := NewMemoryStore()
	l, _ := newTestLimiter(store, start)

	for i := 1; i <= 5; i++ {
		d, err := l.CheckAndConsume(ctx, "key-1", "tiny")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5-i, d.Hour.Remaining)
	}

	d, err := l.CheckAndConsume(ctx, "key-1", "tiny")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, WindowHour, d.Exceeded)
	assert.Equal(t, 0, d.Hour.Remaining)
	assert.Equal(t, time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC), d.Hour.ResetAt)
	assert.Equal(t, 95, d.Day.Remaining, "rejected request must not be counted")

	// another rejection still leaves the day counter at 5
	d, err = l.CheckAndConsume(ctx, "key-1", "tiny")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 95, d.Day.Remaining)
}

func TestLimiter_WindowRollover(t *testing.T) {
	ctx := context.Background()
	l, c := newTestLimiter(NewMemoryStore(), time.Date(2026, 3, 4, 10, 59, 59, 0, time.UTC))

	for i := 0; i < 5; i++ {
		_, err := l.CheckAndConsume(ctx, "key-1", "tiny")
		require.NoError(t, err)
	}
	d, err := l.CheckAndConsume(ctx, "key-1", "tiny")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	c.set(time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC))
	d, err = l.CheckAndConsume(ctx, "key-1", "tiny")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Hour.Remaining)
	assert.Equal(t, 94, d.Day.Remaining)
}

func TestMemoryStore_LateRequestKeepsCurrentWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	window := func(kind WindowKind, start time.Time, limit int) Window {
		return Window{Kind: kind, Start: start, Limit: limit}
	}
	day := window(WindowDay, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), 100)
	prevHour := window(WindowHour, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), 5)
	hour := window(WindowHour, time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC), 5)

	for i := 0; i < 5; i++ {
		u, err := store.Consume(ctx, "key-1", hour, day)
		require.NoError(t, err)
		require.True(t, u.Allowed)
	}

	// clock read at 10:59:59 but lock taken after the 11:00 requests
	u, err := store.Consume(ctx, "key-1", prevHour, day)
	require.NoError(t, err)
	assert.False(t, u.Allowed)
	assert.Equal(t, WindowHour, u.Exceeded)

	u, err = store.Consume(ctx, "key-1", hour, day)
	require.NoError(t, err)
	assert.False(t, u.Allowed)
	assert.Equal(t, 5, u.HourCount)
	assert.Equal(t, 5, u.DayCount)

	// same for the day window across midnight
	nextDay := window(WindowDay, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), 5)
	nextHour := window(WindowHour, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), 100)
	for i := 0; i < 5; i++ {
		u, err = store.Consume(ctx, "key-2", nextHour, nextDay)
		require.NoError(t, err)
		require.True(t, u.Allowed)
	}
	late := window(WindowDay, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), 5)
	u, err = store.Consume(ctx, "key-2", window(WindowHour, time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC), 100), late)
	require.NoError(t, err)
	assert.False(t, u.Allowed)

	u, err = store.Consume(ctx, "key-2", nextHour, nextDay)
	require.NoError(t, err)
	assert.False(t, u.Allowed)
	assert.Equal(t, 5, u.DayCount)
}

func TestLimiter_DailyLimitAndUnlimited(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(NewMemoryStore(), time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		d, err := l.CheckAndConsume(ctx, "key-d", "daily")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		assert.Equal(t, Unlimited, d.Hour.Remaining)
	}
	d, err := l.CheckAndConsume(ctx, "key-d", "daily")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, WindowDay, d.Exceeded)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), d.ExceededWindow().ResetAt)

	d, err = l.CheckAndConsume(ctx, "key-p", "power")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, Unlimited, d.Day.Limit)
	assert.Equal(t, Unlimited, d.Day.Remaining)
	assert.Equal(t, 9999, d.Hour.Remaining)
}

func TestLimiter_UnknownTierFallsBackToDefault(t *testing.T) {
	l, _ := newTestLimiter(NewMemoryStore(), time.Now())

	d, err := l.CheckAndConsume(context.Background(), "key-1", "platinum")
	require.NoError(t, err)
	assert.Equal(t, "free", d.Tier)
	assert.Equal(t, 60, d.Hour.Limit)
	assert.Equal(t, 59, d.Hour.Remaining)
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(NewMemoryStore(), time.Now())

	for i := 0; i < 5; i++ {
		_, err := l.CheckAndConsume(ctx, "key-a", "tiny")
		require.NoError(t, err)
	}
	d, err := l.CheckAndConsume(ctx, "key-b", "tiny")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Hour.Remaining)
}

func TestLimiter_ConcurrentRequestsNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(NewMemoryStore(), time.Now())

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.CheckAndConsume(ctx, "key-hot", "free")
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(60), allowed.Load())
}

type failingStore struct{}

func (failingStore) Consume(context.Context, string, Window, Window) (*Usage, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Sweep(context.Context, time.Time) (int, error) { return 0, nil }

func TestLimiter_StoreError(t *testing.T) {
	l, _ := newTestLimiter(failingStore{}, time.Now())

	_, err := l.CheckAndConsume(context.Background(), "key-1", "free")
	require.Error(t, err)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	yesterday := time.Date(2026, 3, 3, 23, 30, 0, 0, time.UTC)
	today := time.Date(2026, 3, 4, 0, 30, 0, 0, time.UTC)

	win := func(at time.Time) (Window, Window) {
		return Window{Kind: WindowHour, Start: HourStart(at), Limit: 10},
			Window{Kind: WindowDay, Start: DayStart(at), Limit: 10}
	}

	h, d := win(yesterday)
	_, err := s.Consume(ctx, "old", h, d)
	require.NoError(t, err)
	h, d = win(today)
	_, err = s.Consume(ctx, "fresh", h, d)
	require.NoError(t, err)

	n, err := s.Sweep(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.Len())
}

func TestWindowStarts(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 42, 17, 5, time.FixedZone("CET", 3600))
	assert.Equal(t, time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), HourStart(at))
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), DayStart(at))
}

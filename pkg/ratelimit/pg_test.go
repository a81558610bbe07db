package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil"
	mghelper "github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil/migrations"
)

func setupPGStore(t *testing.T) (context.Context, *PGStore) {
	t.Helper()

	ctx := context.Background()
	db := pgutil.SetupTestDB(t)
	require.NoError(t, mghelper.CreateSchema(ctx, db, &WindowCounterDao{}))

	return ctx, NewPGStore(db)
}

func windowsAt(at time.Time, hourly, daily int) (Window, Window) {
	return Window{Kind: WindowHour, Start: HourStart(at), Limit: hourly},
		Window{Kind: WindowDay, Start: DayStart(at), Limit: daily}
}

func TestPGStore_ConsumeBoundary(t *testing.T) {
	ctx, s := setupPGStore(t)
	hour, day := windowsAt(time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC), 5, 100)

	for i := 1; i <= 5; i++ {
		u, err := s.Consume(ctx, "key-1", hour, day)
		require.NoError(t, err)
		require.True(t, u.Allowed)
		assert.Equal(t, i, u.HourCount)
	}

	u, err := s.Consume(ctx, "key-1", hour, day)
	require.NoError(t, err)
	assert.False(t, u.Allowed)
	assert.Equal(t, WindowHour, u.Exceeded)
	assert.Equal(t, 5, u.HourCount)
	assert.Equal(t, 5, u.DayCount)

	next, day2 := windowsAt(time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC), 5, 100)
	u, err = s.Consume(ctx, "key-1", next, day2)
	require.NoError(t, err)
	assert.True(t, u.Allowed)
	assert.Equal(t, 1, u.HourCount)
	assert.Equal(t, 6, u.DayCount)
}

func TestPGStore_ConcurrentConsume(t *testing.T) {
	ctx, s := setupPGStore(t)
	hour, day := windowsAt(time.Now(), 10, Unlimited)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := s.Consume(ctx, "key-hot", hour, day)
			if err == nil && u.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
}

func TestPGStore_Sweep(t *testing.T) {
	ctx, s := setupPGStore(t)
	old := time.Date(2026, 3, 3, 22, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

	h, d := windowsAt(old, 10, 10)
	_, err := s.Consume(ctx, "key-1", h, d)
	require.NoError(t, err)
	h, d = windowsAt(now, 10, 10)
	_, err = s.Consume(ctx, "key-1", h, d)
	require.NoError(t, err)

	n, err := s.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var remaining int
	remaining, err = s.db.NewSelect().Model((*WindowCounterDao)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

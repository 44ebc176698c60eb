package quota

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"botcheck-go-srv/internal/store"
)

func newTestCounter(t *testing.T) *Counter {
	t.Helper()
	b, err := store.OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return NewCounter(store.NewKV(b, zerolog.Nop()))
}

func TestUsage_FreshCounterIsZero(t *testing.T) {
	c := newTestCounter(t)
	require.Equal(t, 0, c.Usage(context.Background(), KindInteractive))
}

func TestUsage_IdempotentWithinSameDay(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	c.Increment(ctx, KindInteractive)
	c.Increment(ctx, KindInteractive)

	first := c.Usage(ctx, KindInteractive)
	second := c.Usage(ctx, KindInteractive)
	require.Equal(t, first, second)
	require.Equal(t, 2, first)
}

func TestIncrement_CountsExactly(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	const n = 7
	for i := 1; i <= n; i++ {
		require.Equal(t, i, c.Increment(ctx, KindInteractive))
	}
	require.Equal(t, n, c.Usage(ctx, KindInteractive))
}

func TestKindsAreIndependent(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	c.Increment(ctx, KindInteractive)
	c.Increment(ctx, KindInteractive)
	c.Increment(ctx, KindAPI)

	require.Equal(t, 2, c.Usage(ctx, KindInteractive))
	require.Equal(t, 1, c.Usage(ctx, KindAPI))
}

func TestDayBoundaryResetsCount(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 23, 50, 0, 0, time.Local)
	c.now = func() time.Time { return day }

	c.Increment(ctx, KindInteractive)
	c.Increment(ctx, KindInteractive)
	c.Increment(ctx, KindAPI)
	require.Equal(t, 2, c.Usage(ctx, KindInteractive))

	// cross midnight
	c.now = func() time.Time { return day.Add(time.Hour) }

	require.Equal(t, 0, c.Usage(ctx, KindInteractive))
	require.Equal(t, 1, c.Increment(ctx, KindAPI), "increment must observe the rollover too")
}

func TestRollover_ResetsAllKinds(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)
	c.now = func() time.Time { return day }
	c.Increment(ctx, KindInteractive)
	c.Increment(ctx, KindAPI)

	c.now = func() time.Time { return day.AddDate(0, 0, 1) }
	c.Rollover(ctx)

	require.Equal(t, 0, c.Usage(ctx, KindInteractive))
	require.Equal(t, 0, c.Usage(ctx, KindAPI))
}

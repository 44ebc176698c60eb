package quota

import (
	"context"
	"sync"
	"time"

	"botcheck-go-srv/internal/store"
)

// Kind selects one of the two independent daily counters.
type Kind string

const (
	KindInteractive Kind = "interactive"
	KindAPI         Kind = "api"
)

const dayFormat = "2006-01-02"

// Counter tracks calendar-day-bounded usage. The rollover is lazy: the
// anchor day is compared on every read, so a counter left over from
// yesterday reads as zero even if the process slept through midnight.
type Counter struct {
	kv  *store.KV
	now func() time.Time

	// one lock per kind keeps read-then-write rollover/increment atomic
	mu map[Kind]*sync.Mutex
}

func NewCounter(kv *store.KV) *Counter {
	return &Counter{
		kv:  kv,
		now: time.Now,
		mu: map[Kind]*sync.Mutex{
			KindInteractive: {},
			KindAPI:         {},
		},
	}
}

func (c *Counter) keys(kind Kind) (countKey, dayKey string) {
	if kind == KindAPI {
		return store.KeyAPIUsageCount, store.KeyAPIUsageDate
	}
	return store.KeyDailyUsageCount, store.KeyDailyUsageDate
}

// Usage returns today's count for kind, resetting first if the stored
// anchor day is not today (local wall-clock date).
func (c *Counter) Usage(ctx context.Context, kind Kind) int {
	c.mu[kind].Lock()
	defer c.mu[kind].Unlock()
	return c.usageLocked(ctx, kind)
}

// Increment applies any pending rollover, then stores and returns count+1.
func (c *Counter) Increment(ctx context.Context, kind Kind) int {
	c.mu[kind].Lock()
	defer c.mu[kind].Unlock()

	count := c.usageLocked(ctx, kind) + 1
	countKey, _ := c.keys(kind)
	c.kv.Set(ctx, countKey, count)
	return count
}

// Rollover forces the day check for every kind. Called by the scheduler so
// an idle process doesn't keep showing yesterday's numbers.
func (c *Counter) Rollover(ctx context.Context) {
	for _, kind := range []Kind{KindInteractive, KindAPI} {
		c.Usage(ctx, kind)
	}
}

func (c *Counter) usageLocked(ctx context.Context, kind Kind) int {
	countKey, dayKey := c.keys(kind)
	today := c.now().Format(dayFormat)

	var day string
	c.kv.Get(ctx, dayKey, &day)

	if day != today {
		c.kv.Set(ctx, dayKey, today)
		c.kv.Set(ctx, countKey, 0)
		return 0
	}

	count := 0
	c.kv.Get(ctx, countKey, &count)
	return count
}

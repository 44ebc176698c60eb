package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunner_FiresOnInterval(t *testing.T) {
	var runs atomic.Int32
	r := NewRunner("test", 10*time.Millisecond, func(context.Context) {
		runs.Add(1)
	}, zerolog.Nop())

	r.Start()
	time.Sleep(55 * time.Millisecond)
	r.Stop()

	require.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestRunner_StopIsClean(t *testing.T) {
	r := NewRunner("test", time.Hour, func(context.Context) {
		t.Fatal("must not fire before the interval")
	}, zerolog.Nop())

	r.Start()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRunner_TaskContextCancelledOnStop(t *testing.T) {
	entered := make(chan struct{})
	var sawCancel atomic.Bool

	r := NewRunner("test", 5*time.Millisecond, func(ctx context.Context) {
		close(entered)
		select {
		case <-ctx.Done():
			sawCancel.Store(true)
		case <-time.After(2 * time.Second):
		}
	}, zerolog.Nop())

	r.Start()
	<-entered
	r.Stop()

	require.True(t, sawCancel.Load(), "in-flight task must observe cancellation")
}

func TestUntilNextMidnight(t *testing.T) {
	now := time.Date(2026, 8, 23, 23, 0, 0, 0, time.Local)
	require.Equal(t, time.Hour, untilNextMidnight(now))
}

package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Task is one recurring background job. It must tolerate running
// alongside foreground requests; shared state is guarded inside the
// components it calls, not here.
type Task func(ctx context.Context)

// Runner executes a task on a fixed interval until stopped. Foreground
// work never waits on a runner and a runner never holds anything a
// request needs.
type Runner struct {
	name     string
	interval time.Duration
	task     Task
	log      zerolog.Logger

	// firstDelay, when set, postpones the first run (daily tasks start at
	// the next local midnight instead of interval-from-now)
	firstDelay time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewRunner(name string, interval time.Duration, task Task, log zerolog.Logger) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		task:     task,
		log:      log.With().Str("component", "scheduler").Str("task", name).Logger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// NewDaily builds a runner that first fires at the next local midnight,
// then every 24 hours. Used for the proactive quota rollover so an idle
// process doesn't show yesterday's counts.
func NewDaily(name string, task Task, log zerolog.Logger) *Runner {
	r := NewRunner(name, 24*time.Hour, task, log)
	r.firstDelay = untilNextMidnight(time.Now())
	return r
}

func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}

// Start launches the runner goroutine.
func (r *Runner) Start() {
	go r.run()
}

// Stop halts the runner and waits for the goroutine to exit. A task in
// flight finishes first.
func (r *Runner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Runner) run() {
	defer close(r.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.stopCh
		cancel()
	}()

	if r.firstDelay > 0 {
		select {
		case <-r.stopCh:
			return
		case <-time.After(r.firstDelay):
			r.fire(ctx)
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.fire(ctx)
		}
	}
}

func (r *Runner) fire(ctx context.Context) {
	started := time.Now()
	r.task(ctx)
	r.log.Debug().Dur("took", time.Since(started)).Msg("task ran")
}

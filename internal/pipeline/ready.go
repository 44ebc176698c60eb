package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrNotReady is returned when the probe never succeeds inside the ceiling.
var ErrNotReady = errors.New("target not ready")

const (
	readyPollInterval = 500 * time.Millisecond
	readyCeiling      = 10 * time.Second
)

// AwaitReady polls probe every 500ms until it reports true, the context is
// cancelled, or the 10-second ceiling elapses.
func AwaitReady(ctx context.Context, probe func(context.Context) bool) error {
	ctx, cancel := context.WithTimeout(ctx, readyCeiling)
	defer cancel()

	if probe(ctx) {
		return nil
	}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrNotReady
			}
			return ctx.Err()
		case <-ticker.C:
			if probe(ctx) {
				return nil
			}
		}
	}
}

package aggregate

import (
	"context"
	"time"
)

// Pacer suspends the aggregator between batches. It is a separate
// primitive so pacing policy can be tested without real sleeps.
type Pacer interface {
	// Pause suspends for d, returning early with the context error if the
	// caller is cancelled.
	Pause(ctx context.Context, d time.Duration) error
}

// SleepPacer pauses with a timer.
type SleepPacer struct{}

func (SleepPacer) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

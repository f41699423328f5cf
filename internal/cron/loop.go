package cron

import (
	"context"
	"time"
)

// Loop calls fn at every activation of sched until ctx is cancelled.
// fn runs on the calling goroutine, so activations never overlap; an
// activation that would have fired while fn was running is skipped.
func Loop(ctx context.Context, sched Schedule, now func() time.Time, fn func(ctx context.Context, at time.Time)) {
	if now == nil {
		now = time.Now
	}

	for {
		current := now()
		next := sched.Next(current)
		if next.IsZero() {
			return
		}

		timer := time.NewTimer(next.Sub(current))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if ctx.Err() != nil {
			return
		}
		fn(ctx, next)
	}
}

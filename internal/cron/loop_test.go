package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type delaySchedule time.Duration

func (d delaySchedule) Next(after time.Time) time.Time {
	return after.Add(time.Duration(d))
}

type neverSchedule struct{}

func (neverSchedule) Next(time.Time) time.Time { return time.Time{} }

func TestLoop_FiresUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	done := make(chan struct{})
	go func() {
		Loop(ctx, delaySchedule(10*time.Millisecond), nil, func(ctx context.Context, at time.Time) {
			if calls.Add(1) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not return after cancel")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestLoop_CallsDoNotOverlap(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var running, overlaps atomic.Int32
	Loop(ctx, delaySchedule(time.Millisecond), nil, func(ctx context.Context, at time.Time) {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
	})

	if overlaps.Load() != 0 {
		t.Errorf("detected %d overlapping calls", overlaps.Load())
	}
}

func TestLoop_ZeroNextReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		Loop(context.Background(), neverSchedule{}, nil, func(context.Context, time.Time) {
			t.Error("fn should not be called")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop did not return for a schedule with no activations")
	}
}

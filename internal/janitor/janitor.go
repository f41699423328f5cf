// Package janitor prunes old tick journal rows.
//
// The journal only grows, so the janitor deletes rows older than the
// retention on a fixed interval. A failed cycle is logged and retried on the
// next interval.
package janitor

import (
	"context"
	"log"
	"time"
)

// Store defines the interface for deleting old journal rows.
type Store interface {
	PruneOlderThan(ctx context.Context, t time.Time) (int64, error)
}

// MetricsSink records pruning outcomes.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	JournalPruned(rows int64, err error)
}

// Config holds janitor configuration.
type Config struct {
	// Interval is how often the janitor runs.
	// Default: 1 hour.
	Interval time.Duration

	// Retention is how long journal rows are kept.
	// Default: 7 days.
	Retention time.Duration
}

// DefaultConfig returns the default janitor configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Hour,
		Retention: 7 * 24 * time.Hour,
	}
}

type Janitor struct {
	config  Config
	store   Store
	clock   func() time.Time
	metrics MetricsSink // optional, nil = disabled
}

func New(config Config, store Store) *Janitor {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	return &Janitor{
		config: config,
		store:  store,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink to the janitor.
func (j *Janitor) WithMetrics(sink MetricsSink) *Janitor {
	j.metrics = sink
	return j
}

// Run starts the pruning loop. It blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	log.Printf("janitor: started (interval=%s, retention=%s)", j.config.Interval, j.config.Retention)

	// Run immediately on startup, then on ticker
	j.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("janitor: stopped")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

func (j *Janitor) runCycle(ctx context.Context) {
	cutoff := j.clock().UTC().Add(-j.config.Retention)

	n, err := j.store.PruneOlderThan(ctx, cutoff)
	if j.metrics != nil {
		j.metrics.JournalPruned(n, err)
	}
	if err != nil {
		log.Printf("janitor: prune failed: %v", err)
		return
	}
	if n == 0 {
		return
	}
	log.Printf("janitor: pruned %d ticks older than %s", n, cutoff.Format(time.RFC3339))
}

// Package leaderelection runs a duty on exactly one replica using a Postgres
// advisory lock.
//
// Replicas that share a Postgres tick journal each poll and chart on their
// own, but journal maintenance must run once. The lock is session-scoped and
// held on a dedicated connection for as long as the duty runs; Postgres
// releases it when that connection dies. The heartbeat only detects local
// connection loss.
package leaderelection

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"
)

// Defaults used when Config fields are zero.
const (
	DefaultRetryInterval     = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
)

// JanitorLockKey is the advisory lock guarding journal pruning.
const JanitorLockKey int64 = 0x626f7467 // "botg"

// MetricsSink records leadership changes.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
}

type Config struct {
	LockKey           int64
	RetryInterval     time.Duration
	HeartbeatInterval time.Duration
}

// Elector runs a duty while it holds the advisory lock.
type Elector struct {
	db      *sql.DB
	config  Config
	metrics MetricsSink // optional, nil = disabled
}

func New(db *sql.DB, config Config) *Elector {
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Elector{db: db, config: config}
}

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run competes for the lock until ctx is cancelled. While held, duty runs
// with a context that is cancelled when leadership is lost; Run waits for
// duty to return before competing again.
func (e *Elector) Run(ctx context.Context, duty func(ctx context.Context)) {
	log.Printf("leader: starting election loop (lock_key=%d, retry=%s, heartbeat=%s)",
		e.config.LockKey, e.config.RetryInterval, e.config.HeartbeatInterval)

	for {
		reason := e.runOnce(ctx, duty)

		if ctx.Err() != nil {
			log.Println("leader: election loop stopped")
			return
		}
		if reason != "" {
			log.Printf("leader: lost leadership (reason=%s), will retry in %s", reason, e.config.RetryInterval)
		}

		select {
		case <-ctx.Done():
			log.Println("leader: election loop stopped")
			return
		case <-time.After(e.config.RetryInterval):
		}
	}
}

// runOnce tries the lock once and, if acquired, runs duty until the lock is
// lost. Returns "" when the lock was not acquired.
func (e *Elector) runOnce(ctx context.Context, duty func(ctx context.Context)) string {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("leader: failed to acquire dedicated connection: %v", err)
		}
		return ""
	}
	defer conn.Close()

	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.config.LockKey).Scan(&acquired)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("leader: advisory lock query failed: %v", err)
		}
		return ""
	}
	if !acquired {
		log.Printf("leader: lock %d held by another replica", e.config.LockKey)
		return ""
	}

	log.Printf("leader: acquired advisory lock %d", e.config.LockKey)
	e.setLeader(true)

	dutyCtx, cancelDuty := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		duty(dutyCtx)
	}()

	reason := e.holdLock(ctx, conn)

	cancelDuty()
	wg.Wait()
	e.setLeader(false)

	if reason != "conn_lost" {
		// The connection returns to the pool, so release explicitly.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", e.config.LockKey); err != nil {
			log.Printf("leader: advisory unlock failed: %v", err)
		}
		cancel()
	}

	log.Printf("leader: released advisory lock %d", e.config.LockKey)
	return reason
}

// holdLock blocks while pinging the dedicated connection.
// Returns the reason the lock was lost.
func (e *Elector) holdLock(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return "shutdown"
				}
				log.Printf("leader: dedicated connection ping failed: %v", err)
				return "conn_lost"
			}
		}
	}
}

func (e *Elector) setLeader(leader bool) {
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(leader)
	}
}

// Package journal records one row per scheduler tick in SQLite or PostgreSQL.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/djlord-it/botgraph/internal/domain"
)

var ErrDuplicateTick = errors.New("tick already recorded")

// Dialect selects schema and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const DefaultOpTimeout = 5 * time.Second

// ParseDialect maps a JOURNAL_DRIVER value to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported journal driver %q", driver)
	}
}

type Store struct {
	db        *sql.DB
	dialect   Dialect
	opTimeout time.Duration
}

// Open connects to the journal database and creates the schema.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// A single connection serialises writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA synchronous=NORMAL;",
			"PRAGMA busy_timeout=5000;",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection. The schema is not created.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, opTimeout: DefaultOpTimeout}
}

// WithOpTimeout bounds every statement.
func (s *Store) WithOpTimeout(d time.Duration) *Store {
	s.opTimeout = d
	return s
}

func (s *Store) Migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.dialect == DialectPostgres {
		schema = schemaPostgres
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// RecordTick inserts tick. Returns ErrDuplicateTick if the id exists.
func (s *Store) RecordTick(ctx context.Context, tick domain.Tick) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(queryInsertTick),
		tick.ID.String(),
		int64(tick.Seq),
		int64(tick.Epoch),
		tick.StartedAt.UnixMilli(),
		tick.Duration.Milliseconds(),
		tick.Appended,
		tick.Error,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateTick
		}
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

// RecentTicks returns up to limit ticks, newest first.
func (s *Store) RecentTicks(ctx context.Context, limit int) ([]domain.Tick, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.rebind(queryRecentTicks), limit)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var result []domain.Tick
	for rows.Next() {
		var (
			tick       domain.Tick
			id         string
			seq, epoch int64
			startedMs  int64
			durationMs int64
		)
		if err := rows.Scan(&id, &seq, &epoch, &startedMs, &durationMs, &tick.Appended, &tick.Error); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		tick.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse tick id %q: %w", id, err)
		}
		tick.Seq = uint64(seq)
		tick.Epoch = uint64(epoch)
		tick.StartedAt = time.UnixMilli(startedMs).UTC()
		tick.Duration = time.Duration(durationMs) * time.Millisecond
		result = append(result, tick)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PruneOlderThan deletes ticks started before t and returns how many went.
func (s *Store) PruneOlderThan(ctx context.Context, t time.Time) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.rebind(queryPruneTicks), t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune ticks: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) CountTicks(ctx context.Context) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, queryCountTicks).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	return n, nil
}

// Ping satisfies api.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying pool for leader election.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites $N placeholders to ? for SQLite.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

// isDuplicateKeyError recognises unique violations from lib/pq and SQLite.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

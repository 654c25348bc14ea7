// Package store is the idempotent Postgres sink and backlog source for
// sync runs. Every write is a keyed upsert, so replaying a window or
// re-running a failed job converges on the same rows instead of
// duplicating them. Backlogs are derived here too, keyset-paginated so
// completed rows leave the predicate between pages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/FridaySalami/spapi-sync/pkg/logging"
	"github.com/FridaySalami/spapi-sync/pkg/spapi"
)

// ErrSinkWrite marks a failed batch write. The affected rows stay
// missing, so the next run's backlog derives them again.
var ErrSinkWrite = errors.New("sink write failed")

// Config holds the settings for the store.
type Config struct {
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string

	// BatchSize is how many rows one batch carries (default 100).
	BatchSize int

	// MaxConns bounds the connection pool (default 4).
	MaxConns int
}

// Store writes synced records to Postgres and derives work backlogs
// from what is already there.
type Store struct {
	pool      *pgxpool.Pool
	batchSize int
	logger    zerolog.Logger
}

// New connects a pool and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return NewWithPool(pool, cfg.BatchSize), nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Store{
		pool:      pool,
		batchSize: batchSize,
		logger:    logging.NewLogger("store"),
	}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the sink tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	s.logger.Debug().Msg("Schema ensured")
	return nil
}

// sendBatch executes one queued batch. A serialization failure or
// deadlock is retried once before the batch is surfaced as a sink
// write failure.
func (s *Store) sendBatch(ctx context.Context, b *pgx.Batch, label string) (int, error) {
	rows, err := s.execBatch(ctx, b)
	if err != nil && retryable(err) {
		s.logger.Warn().Str("batch", label).Err(err).Msg("Retrying batch after a transient database error")
		rows, err = s.execBatch(ctx, b)
	}
	if err != nil {
		return rows, fmt.Errorf("%w: %s batch of %d statements: %w", ErrSinkWrite, label, b.Len(), err)
	}
	return rows, nil
}

// execBatch pipelines the batch and sums the affected row counts.
func (s *Store) execBatch(ctx context.Context, b *pgx.Batch) (int, error) {
	br := s.pool.SendBatch(ctx, b)

	total := 0
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return total, err
		}
		total += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return total, err
	}
	return total, nil
}

// retryable reports whether a database error may succeed on a second
// attempt. Unique violations are not retryable; upserts cannot raise
// them on their conflict key, so one would mean a schema bug.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	}
	return false
}

// moneyParams converts an optional money value to a pair of SQL
// parameters, NULL when absent. The decimal string goes to Postgres
// uninterpreted so the numeric column keeps full precision.
func moneyParams(m *spapi.Money) (any, any) {
	if m == nil || m.Amount == "" {
		return nil, nil
	}
	return m.Amount, m.CurrencyCode
}

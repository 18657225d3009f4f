// Package pgstore implements queue.Storage on PostgreSQL.
//
// Jobs live in one table; workers claim with SELECT ... FOR UPDATE SKIP LOCKED
// so concurrent consumers never take the same row. Deduplication is a partial
// unique index over unfinished jobs, and dead letters are rows in a separate
// table keyed by source queue. The schema ships as embedded goose migrations.
package pgstore

import (
	"context"
	"embed"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/campusjobs/pkg/pg"
	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ queue.Storage = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithCompletedRetention keeps completed rows for d. Zero deletes them on completion.
func WithCompletedRetention(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.completedRetention = d
		}
	}
}

// WithClock overrides the time source used for run times and lock deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is a PostgreSQL implementation of queue.Storage using pgx/v5.
type Store struct {
	pool               *pgxpool.Pool
	completedRetention time.Duration
	now                func() time.Time
	logger             *slog.Logger
}

// New creates a store on an existing pool. The caller owns the pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context, cfg pg.Config) error {
	return pg.Migrate(ctx, s.pool, migrationsFS, "migrations", cfg, s.logger)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Package redisstore implements queue.Storage on Redis.
//
// Each job is a Hash. A queue is three Sorted Sets: ready jobs ranked by
// priority then enqueue sequence, delayed jobs scored by run time, and
// in-flight jobs scored by lock deadline. Dead letters are appended to one List
// per source queue. Every state transition runs as a Lua script, so a job is
// never claimed twice or lost between two commands.
//
// Usage:
//
//	client, _ := redis.Connect(ctx, cfg)
//	s := redisstore.New(client, redisstore.WithKeyPrefix("campusjobs"))
//	registry, _ := queue.NewRegistry(s)
//
// The scripts address job hashes by key name, so the store targets a single
// Redis node or a primary with replicas, not Redis Cluster.
package redisstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

// Compile-time interface checks.
var (
	_ queue.Storage          = (*Store)(nil)
	_ queue.IdempotencyGuard = (*Guard)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key written by the store.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithCompletedRetention keeps completed job hashes for d before Redis expires
// them. Zero deletes them on completion.
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

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store implements queue.Storage backed by Redis.
type Store struct {
	client             redis.UniversalClient
	prefix             string
	completedRetention time.Duration
	now                func() time.Time
	logger             *slog.Logger
}

// New creates a Redis-backed store. The caller owns the client lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "campusjobs",
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) jobKeyPrefix() string { return s.prefix + ":job:" }
func (s *Store) jobKey(id string) string { return s.jobKeyPrefix() + id }
func (s *Store) queueKey(q, suffix string) string { return s.prefix + ":queue:" + q + ":" + suffix }
func (s *Store) readyKey(q string) string { return s.queueKey(q, "ready") }
func (s *Store) delayedKey(q string) string { return s.queueKey(q, "delayed") }
func (s *Store) inflightKey(q string) string { return s.queueKey(q, "inflight") }
func (s *Store) seqKey(q string) string { return s.queueKey(q, "seq") }
func (s *Store) completedKey(q string) string { return s.queueKey(q, "completed") }
func (s *Store) dlqKey(q string) string { return s.prefix + ":dlq:" + queue.DeadLetterQueueName(q) }

// dedupKey returns a placeholder key when the job has no dedup key; scripts
// never touch it in that case.
func (s *Store) dedupKey(q, key string) string {
	if key == "" {
		return s.queueKey(q, "dedup")
	}
	return s.queueKey(q, "dedup:"+key)
}

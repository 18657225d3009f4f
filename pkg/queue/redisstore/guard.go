package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultGuardTTL bounds how long a delivery is remembered as done.
const DefaultGuardTTL = 7 * 24 * time.Hour

// Guard is a queue.IdempotencyGuard that records finished deliveries in Redis,
// shared by every worker process using the same server.
type Guard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewGuard creates a guard writing keys under prefix. A non-positive ttl uses DefaultGuardTTL.
func NewGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *Guard {
	if prefix == "" {
		prefix = "campusjobs"
	}
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &Guard{client: client, prefix: prefix + ":done:", ttl: ttl}
}

// IsDone reports whether key was marked done and has not expired.
func (g *Guard) IsDone(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Exists(ctx, g.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: guard check: %w", err)
	}
	return n > 0, nil
}

// MarkDone records key as done for the guard TTL.
func (g *Guard) MarkDone(ctx context.Context, key string) error {
	if err := g.client.Set(ctx, g.prefix+key, "1", g.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: guard mark: %w", err)
	}
	return nil
}

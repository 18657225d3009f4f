package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

// ListDeadLetters returns up to limit entries of the queue's dead-letter list,
// newest first. A non-positive limit returns all entries.
func (s *Store) ListDeadLetters(ctx context.Context, q string, limit int) ([]*queue.DeadLetter, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	raw, err := s.client.LRange(ctx, s.dlqKey(q), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list dead letters: %w", err)
	}

	entries := make([]*queue.DeadLetter, 0, len(raw))
	for _, item := range raw {
		var dl queue.DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable dead letter",
				slog.String("queue", q),
				slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, &dl)
	}
	return entries, nil
}

// Stats implements queue.InspectorRepository. Delayed jobs already due count
// as pending even before a claim promotes them to the ready set.
func (s *Store) Stats(ctx context.Context, q string) (*queue.Stats, error) {
	now := strconv.FormatInt(s.now().UnixMilli(), 10)

	pipe := s.client.Pipeline()
	ready := pipe.ZCard(ctx, s.readyKey(q))
	due := pipe.ZCount(ctx, s.delayedKey(q), "-inf", now)
	delayed := pipe.ZCount(ctx, s.delayedKey(q), "("+now, "+inf")
	inflight := pipe.ZCard(ctx, s.inflightKey(q))
	completed := pipe.Get(ctx, s.completedKey(q))
	dead := pipe.LLen(ctx, s.dlqKey(q))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redisstore: queue stats: %w", err)
	}

	done, err := completed.Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redisstore: queue stats: %w", err)
	}

	return &queue.Stats{
		Queue:        q,
		Pending:      ready.Val() + due.Val(),
		Scheduled:    delayed.Val(),
		InFlight:     inflight.Val(),
		Completed:    done,
		DeadLettered: dead.Val(),
	}, nil
}

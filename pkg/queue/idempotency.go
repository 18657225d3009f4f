package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// IdempotencyGuard remembers which deliveries already produced their side effect.
type IdempotencyGuard interface {
	IsDone(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key string) error
}

// Idempotent wraps h so that a redelivered job whose side effect was already
// applied is acknowledged without running h again. The key is the job ID.
//
// Marking happens after h succeeds, so a crash between the side effect and
// MarkDone still re-runs h; handlers stay responsible for tolerating that.
func Idempotent(guard IdempotencyGuard, h Handler) Handler {
	if guard == nil {
		return h
	}
	return HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
		job, ok := JobFromContext(ctx)
		if !ok {
			return h.Handle(ctx, payload)
		}

		key := job.Queue + ":" + job.ID.String()
		done, err := guard.IsDone(ctx, key)
		if err != nil {
			return fmt.Errorf("idempotency check for job %s: %w", job.ID, err)
		}
		if done {
			return nil
		}

		if err := h.Handle(ctx, payload); err != nil {
			return err
		}

		if err := guard.MarkDone(ctx, key); err != nil {
			return fmt.Errorf("idempotency mark for job %s: %w", job.ID, err)
		}
		return nil
	})
}

// MemoryGuard is an in-process IdempotencyGuard for tests and single-node setups.
type MemoryGuard struct {
	mu   sync.Mutex
	done map[string]struct{}
}

// NewMemoryGuard returns an empty MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{done: make(map[string]struct{})}
}

// IsDone implements IdempotencyGuard.
func (g *MemoryGuard) IsDone(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.done[key]
	return ok, nil
}

// MarkDone implements IdempotencyGuard.
func (g *MemoryGuard) MarkDone(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done[key] = struct{}{}
	return nil
}

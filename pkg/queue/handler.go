package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

type (
	// Handler executes the side effect of a job. Handlers must be idempotent:
	// at-least-once delivery means the same payload may be handled more than once.
	Handler interface {
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// HandlerFunc adapts a plain function to Handler.
	HandlerFunc func(ctx context.Context, payload json.RawMessage) error

	// TypedHandlerFunc receives the payload decoded into T.
	TypedHandlerFunc[T any] func(ctx context.Context, payload T) error
)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

// NewHandler wraps a typed function. A payload that does not decode into T is
// reported as ErrPoisonPayload, so the runtime dead-letters it without retrying.
func NewHandler[T any](handler TypedHandlerFunc[T]) Handler {
	return &typedHandler[T]{handler: handler}
}

type typedHandler[T any] struct {
	handler TypedHandlerFunc[T]
}

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("%w: decode %T: %v", ErrPoisonPayload, t, err)
	}
	return h.handler(ctx, t)
}

type jobContextKey struct{}

// WithJob returns a context carrying the job being handled.
func WithJob(ctx context.Context, job *Job) context.Context {
	return context.WithValue(ctx, jobContextKey{}, job)
}

// JobFromContext returns the job being handled, if any.
// Handlers use it to read the job ID, attempt number or queue name.
func JobFromContext(ctx context.Context) (*Job, bool) {
	job, ok := ctx.Value(jobContextKey{}).(*Job)
	return job, ok && job != nil
}

// LogJobContext adds a "job" group with the id, queue and attempt of the job in
// ctx. Its signature matches logger.ContextExtractor, so handler logs carry
// the job without passing it around.
func LogJobContext(ctx context.Context) (slog.Attr, bool) {
	job, ok := JobFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.Group("job",
		slog.String("id", job.ID.String()),
		slog.String("queue", job.Queue),
		slog.Int("attempt", job.Attempts+1),
	), true
}

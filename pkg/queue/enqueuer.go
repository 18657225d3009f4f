package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Enqueuer is the producer API used by write-path handlers.
// It is fire-and-forget: the returned ID identifies the stored job, and no
// completion feedback is ever delivered back to the caller.
type Enqueuer struct {
	registry *Registry
}

// NewEnqueuer creates a new Enqueuer over the queues of registry
func NewEnqueuer(registry *Registry) (*Enqueuer, error) {
	if registry == nil {
		return nil, ErrRegistryNil
	}
	return &Enqueuer{registry: registry}, nil
}

// Enqueue adds a new job to the named queue. The queue must already be
// registered; otherwise ErrQueueNotRegistered is returned and nothing is stored.
func (e *Enqueuer) Enqueue(ctx context.Context, queueName string, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	h, err := e.registry.Lookup(queueName)
	if err != nil {
		e.registry.metrics.enqueueRejected(queueName)
		return uuid.Nil, fmt.Errorf("enqueue to %q: %w", queueName, err)
	}
	return h.Enqueue(ctx, payload, opts...)
}

func (r *Registry) enqueue(ctx context.Context, queueName string, payload any, options *enqueueOptions) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	if !options.priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}

	job, err := buildJob(queueName, payload, options)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := r.repo.CreateJob(ctx, job)
	if err != nil {
		return uuid.Nil, errors.Join(ErrJobCreate, fmt.Errorf("queue %q: %w", queueName, err))
	}

	if id != job.ID {
		r.logger.DebugContext(ctx, "duplicate enqueue collapsed",
			slog.String("queue", queueName),
			slog.String("job_id", id.String()),
			slog.String("dedup_key", job.DedupKey))
		r.metrics.enqueueDeduplicated(queueName)
		return id, nil
	}

	r.metrics.enqueued(queueName)
	return id, nil
}

// buildJob constructs a Job from payload and options
func buildJob(queueName string, payload any, options *enqueueOptions) (*Job, error) {
	var payloadBytes []byte
	switch p := payload.(type) {
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: invalid raw JSON", ErrPayloadMarshal)
		}
		payloadBytes = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Join(ErrPayloadMarshal, fmt.Errorf("payload of type %T: %w", payload, err))
		}
		payloadBytes = b
	}

	now := time.Now()
	runAt := now
	if options.runAt != nil {
		runAt = *options.runAt
	} else if options.delay > 0 {
		runAt = now.Add(options.delay)
	}

	return &Job{
		ID:          uuid.New(),
		Queue:       queueName,
		Payload:     payloadBytes,
		State:       JobStatePending,
		Priority:    options.priority,
		MaxAttempts: options.maxAttempts,
		DedupKey:    options.dedupKey,
		RunAt:       runAt,
		EnqueuedAt:  now,
	}, nil
}

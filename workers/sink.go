package workers

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/campusjobs/pkg/logger"
	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

// Sink applies an entity event downstream. A returned error makes the job
// retryable; wrap queue.ErrPoisonPayload to dead-letter it immediately.
type Sink interface {
	Apply(ctx context.Context, entity string, ev EntityEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entity string, ev EntityEvent) error

// Apply calls f.
func (f SinkFunc) Apply(ctx context.Context, entity string, ev EntityEvent) error {
	return f(ctx, entity, ev)
}

// LogSink records every event as one structured log line.
type LogSink struct {
	Logger *slog.Logger
}

// Apply implements Sink.
func (s LogSink) Apply(ctx context.Context, entity string, ev EntityEvent) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("entity", entity),
		logger.EntityID(ev.EntityID),
		logger.Action(ev.Action),
	}
	if job, ok := queue.JobFromContext(ctx); ok {
		attrs = append(attrs, logger.JobID(job.ID), logger.Queue(job.Queue))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "entity event applied", attrs...)
	return nil
}

package queue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	pullInterval    time.Duration
	lockTimeout     time.Duration
	ackTimeout      time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	metrics         *Metrics
	deadLetterHooks []DeadLetterHook
}

// WithPullInterval sets how often the worker polls an idle queue
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets the visibility timeout of claimed jobs.
// It is raised to twice the handler timeout when shorter.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithAckTimeout bounds the broker calls that finalize a job
func WithAckTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.ackTimeout = d
		}
	}
}

// WithShutdownTimeout sets the grace period Run grants in-flight jobs
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkerMetrics sets the metrics collector for the worker
func WithWorkerMetrics(m *Metrics) WorkerOption {
	return func(o *workerOptions) {
		o.metrics = m
	}
}

// WithDeadLetterHook adds a hook called after each dead-lettered job
func WithDeadLetterHook(hook DeadLetterHook) WorkerOption {
	return func(o *workerOptions) {
		if hook != nil {
			o.deadLetterHooks = append(o.deadLetterHooks, hook)
		}
	}
}

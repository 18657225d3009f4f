package queue

import (
	"fmt"
	"time"
)

const (
	DefaultConcurrency = 1
	DefaultJobTimeout  = 30 * time.Second
)

// Registration binds a queue to a handler together with its concurrency limit,
// retry policy and execution bounds. It is immutable once discovery returns it.
type Registration struct {
	// Name identifies the registration in logs, usually the manifest file name.
	Name        string
	Queue       string
	HandlerName string
	Handler     Handler
	Concurrency int
	Retry       RetryPolicy
	Timeout     time.Duration
	// RateLimit caps claims per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Validate checks the registration and fills in defaults.
func (r Registration) Validate() (Registration, error) {
	if r.Queue == "" {
		return r, fmt.Errorf("%w: %w", ErrInvalidRegistration, ErrInvalidQueueName)
	}
	if r.Handler == nil {
		return r, fmt.Errorf("%w: %w", ErrInvalidRegistration, ErrHandlerNil)
	}
	if r.Concurrency < 0 || r.RateLimit < 0 || r.RateBurst < 0 || r.Timeout < 0 {
		return r, fmt.Errorf("%w: negative limits in %q", ErrInvalidRegistration, r.Name)
	}

	if r.Name == "" {
		r.Name = r.Queue
	}
	if r.Concurrency == 0 {
		r.Concurrency = DefaultConcurrency
	}
	if r.Timeout == 0 {
		r.Timeout = DefaultJobTimeout
	}
	if r.RateLimit > 0 && r.RateBurst == 0 {
		r.RateBurst = r.Concurrency
	}
	r.Retry = r.Retry.withDefaults()

	return r, nil
}

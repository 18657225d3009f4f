package queue

import "time"

// MaxJobAttempts is the largest per-job attempt override accepted by WithMaxAttempts.
const MaxJobAttempts = 25

// EnqueueOption is a functional option for the Enqueue method
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	priority    Priority
	maxAttempts int
	delay       time.Duration
	runAt       *time.Time
	dedupKey    string
}

// WithPriority sets the priority for the job
func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithMaxAttempts overrides the worker's retry policy for this job (1-MaxJobAttempts).
// Values outside the range are ignored; callers taking user input should
// check ValidMaxAttempts first.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		if ValidMaxAttempts(n) {
			o.maxAttempts = n
		}
	}
}

// ValidMaxAttempts reports whether n is accepted by WithMaxAttempts.
func ValidMaxAttempts(n int) bool {
	return n > 0 && n <= MaxJobAttempts
}

// WithDelay sets a delay before the job can be processed
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithRunAt sets a specific time for the job to become available
func WithRunAt(runAt time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.runAt = &runAt
	}
}

// WithDedupKey collapses enqueues that share the key while a previous job
// with the same key on the same queue has not finished yet
func WithDedupKey(key string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.dedupKey = key
	}
}

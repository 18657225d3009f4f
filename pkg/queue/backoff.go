package queue

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = time.Minute
)

// RetryPolicy bounds how often a failed job is retried and how long to wait in between.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max" json:"backoff_max"`
}

// DefaultRetryPolicy returns 3 attempts with exponential backoff between 1s and 1m.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
		BackoffMax:  DefaultBackoffMax,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = DefaultBackoffBase
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = DefaultBackoffMax
	}
	if p.BackoffMax < p.BackoffBase {
		p.BackoffMax = p.BackoffBase
	}
	return p
}

// Backoff returns the delay before the next delivery after the given number of
// failed attempts (1-indexed). The ceiling grows as base * 2^(attempt-1), capped
// at BackoffMax, and the result is drawn uniformly from [ceiling/2, ceiling].
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	ceiling := float64(p.BackoffBase) * math.Pow(2, float64(attempt-1))
	if ceiling > float64(p.BackoffMax) {
		ceiling = float64(p.BackoffMax)
	}

	half := ceiling / 2
	return time.Duration(half + rand.Float64()*half) //nolint:gosec // jitter does not need crypto rand
}

// maxAttemptsFor resolves the attempt budget of job: its own MaxAttempts when set,
// otherwise the registration policy.
func (p RetryPolicy) maxAttemptsFor(job *Job) int {
	if job.MaxAttempts > 0 {
		return job.MaxAttempts
	}
	return p.withDefaults().MaxAttempts
}

package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	policy := queue.RetryPolicy{
		MaxAttempts: 5,
		BackoffBase: time.Second,
		BackoffMax:  10 * time.Second,
	}

	tests := []struct {
		attempt int
		ceiling time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{60, 10 * time.Second},
	}

	for _, tt := range tests {
		for range 50 {
			d := policy.Backoff(tt.attempt)
			assert.GreaterOrEqual(t, d, tt.ceiling/2, "attempt %d", tt.attempt)
			assert.LessOrEqual(t, d, tt.ceiling, "attempt %d", tt.attempt)
		}
	}
}

func TestRetryPolicy_BackoffDefaults(t *testing.T) {
	t.Parallel()

	var zero queue.RetryPolicy
	d := zero.Backoff(1)
	assert.GreaterOrEqual(t, d, queue.DefaultBackoffBase/2)
	assert.LessOrEqual(t, d, queue.DefaultBackoffBase)

	d = zero.Backoff(30)
	assert.LessOrEqual(t, d, queue.DefaultBackoffMax)
}

func TestDefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	policy := queue.DefaultRetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.BackoffBase)
	assert.Equal(t, time.Minute, policy.BackoffMax)
}

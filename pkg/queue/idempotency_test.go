package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

type failingGuard struct{ err error }

func (g failingGuard) IsDone(context.Context, string) (bool, error) { return false, g.err }
func (g failingGuard) MarkDone(context.Context, string) error       { return g.err }

func TestIdempotent(t *testing.T) {
	t.Parallel()

	t.Run("second delivery of a completed job is skipped", func(t *testing.T) {
		t.Parallel()

		calls := 0
		h := queue.Idempotent(queue.NewMemoryGuard(), queue.HandlerFunc(func(context.Context, json.RawMessage) error {
			calls++
			return nil
		}))

		ctx := queue.WithJob(context.Background(), &queue.Job{ID: uuid.New(), Queue: "student-queue"})
		require.NoError(t, h.Handle(ctx, json.RawMessage(`{}`)))
		require.NoError(t, h.Handle(ctx, json.RawMessage(`{}`)))
		assert.Equal(t, 1, calls)

		other := queue.WithJob(context.Background(), &queue.Job{ID: uuid.New(), Queue: "student-queue"})
		require.NoError(t, h.Handle(other, json.RawMessage(`{}`)))
		assert.Equal(t, 2, calls)
	})

	t.Run("failed delivery is not marked", func(t *testing.T) {
		t.Parallel()

		handlerErr := errors.New("boom")
		calls := 0
		h := queue.Idempotent(queue.NewMemoryGuard(), queue.HandlerFunc(func(context.Context, json.RawMessage) error {
			calls++
			if calls == 1 {
				return handlerErr
			}
			return nil
		}))

		ctx := queue.WithJob(context.Background(), &queue.Job{ID: uuid.New(), Queue: "exam-queue"})
		assert.ErrorIs(t, h.Handle(ctx, nil), handlerErr)
		require.NoError(t, h.Handle(ctx, nil))
		assert.Equal(t, 2, calls)
	})

	t.Run("guard errors fail the delivery", func(t *testing.T) {
		t.Parallel()

		guardErr := errors.New("redis down")
		h := queue.Idempotent(failingGuard{err: guardErr}, noopHandler())

		ctx := queue.WithJob(context.Background(), &queue.Job{ID: uuid.New()})
		assert.ErrorIs(t, h.Handle(ctx, nil), guardErr)
	})

	t.Run("without job in context the handler runs", func(t *testing.T) {
		t.Parallel()

		calls := 0
		h := queue.Idempotent(queue.NewMemoryGuard(), queue.HandlerFunc(func(context.Context, json.RawMessage) error {
			calls++
			return nil
		}))
		require.NoError(t, h.Handle(context.Background(), nil))
		require.NoError(t, h.Handle(context.Background(), nil))
		assert.Equal(t, 2, calls)
	})

	t.Run("nil guard returns handler", func(t *testing.T) {
		t.Parallel()

		h := noopHandler()
		assert.NotNil(t, queue.Idempotent(nil, h))
	})
}

package queue_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

func TestNewDispatcher(t *testing.T) {
	t.Parallel()

	storage := newMemoryStorage(t)

	_, err := queue.NewDispatcher(nil, []queue.Registration{{Queue: "q", Handler: noopHandler()}})
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	_, err = queue.NewDispatcher(storage, nil)
	assert.ErrorIs(t, err, queue.ErrNoRegistrations)

	_, err = queue.NewDispatcher(storage, []queue.Registration{{Queue: "q"}})
	assert.ErrorIs(t, err, queue.ErrInvalidRegistration)

	d, err := queue.NewDispatcher(storage, []queue.Registration{
		{Queue: "student-queue", Handler: noopHandler()},
		{Queue: "exam-queue", Handler: noopHandler()},
	})
	require.NoError(t, err)
	assert.Len(t, d.Workers(), 2)
}

func TestDispatcher_RunsEveryRegistration(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)

	var students, exams atomic.Int32
	counting := func(n *atomic.Int32) queue.Handler {
		return queue.HandlerFunc(func(context.Context, json.RawMessage) error {
			n.Add(1)
			return nil
		})
	}

	d, err := queue.NewDispatcher(f.storage, []queue.Registration{
		{Queue: "student-queue", Handler: counting(&students), Concurrency: 2},
		{Queue: "exam-queue", Handler: counting(&exams)},
	},
		queue.WithPullInterval(10*time.Millisecond),
		queue.WithShutdownTimeout(time.Second),
		queue.WithWorkerLogger(discardLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(d.Run(gctx))

	for range 3 {
		f.enqueue(t, "student-queue", testPayload{})
		f.enqueue(t, "exam-queue", testPayload{})
	}

	require.Eventually(t, func() bool {
		return students.Load() == 3 && exams.Load() == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, g.Wait())
}

func TestDispatcher_StartStop(t *testing.T) {
	t.Parallel()

	storage := newMemoryStorage(t)
	d, err := queue.NewDispatcher(storage,
		[]queue.Registration{{Queue: "user-queue", Handler: noopHandler()}},
		queue.WithWorkerLogger(discardLogger()))
	require.NoError(t, err)

	assert.ErrorIs(t, d.Stop(context.Background()), queue.ErrWorkerNotStarted)
	require.NoError(t, d.Start(context.Background()))
	assert.ErrorIs(t, d.Start(context.Background()), queue.ErrWorkerAlreadyStarted)
	require.NoError(t, d.Stop(context.Background()))
}

package redisstore_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
	"github.com/dmitrymomot/campusjobs/pkg/queue/redisstore"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	srv   *miniredis.Miniredis
	store *redisstore.Store
	clock *clock
}

func newFixture(t *testing.T, opts ...redisstore.Option) *fixture {
	t.Helper()

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := &clock{now: time.Now()}
	opts = append([]redisstore.Option{redisstore.WithClock(c.Now)}, opts...)

	return &fixture{srv: srv, store: redisstore.New(client, opts...), clock: c}
}

func (f *fixture) newJob(queueName string, priority queue.Priority) *queue.Job {
	now := f.clock.Now()
	return &queue.Job{
		ID:         uuid.New(),
		Queue:      queueName,
		Payload:    []byte(`{"entity_id":"e-1"}`),
		State:      queue.JobStatePending,
		Priority:   priority,
		RunAt:      now,
		EnqueuedAt: now,
	}
}

func (f *fixture) create(t *testing.T, j *queue.Job) uuid.UUID {
	t.Helper()
	id, err := f.store.CreateJob(context.Background(), j)
	require.NoError(t, err)
	return id
}

func (f *fixture) claim(t *testing.T, queueName string) *queue.Job {
	t.Helper()
	j, err := f.store.ClaimJob(context.Background(), uuid.New(), queueName, time.Minute)
	require.NoError(t, err)
	return j
}

func (f *fixture) stats(t *testing.T, queueName string) queue.Stats {
	t.Helper()
	s, err := f.store.Stats(context.Background(), queueName)
	require.NoError(t, err)
	return *s
}

func TestStore_CreateAndClaim(t *testing.T) {
	t.Parallel()

	t.Run("claimed job round-trips all fields", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		j := f.newJob("student-queue", queue.PriorityHigh)
		j.MaxAttempts = 4
		j.DedupKey = "student:1"
		f.create(t, j)

		workerID := uuid.New()
		claimed, err := f.store.ClaimJob(context.Background(), workerID, "student-queue", time.Minute)
		require.NoError(t, err)

		assert.Equal(t, j.ID, claimed.ID)
		assert.Equal(t, "student-queue", claimed.Queue)
		assert.JSONEq(t, string(j.Payload), string(claimed.Payload))
		assert.Equal(t, queue.JobStateInFlight, claimed.State)
		assert.Equal(t, queue.PriorityHigh, claimed.Priority)
		assert.Equal(t, 0, claimed.Attempts)
		assert.Equal(t, 4, claimed.MaxAttempts)
		assert.Equal(t, "student:1", claimed.DedupKey)
		assert.Equal(t, j.EnqueuedAt.UnixMilli(), claimed.EnqueuedAt.UnixMilli())
		require.NotNil(t, claimed.LockedBy)
		assert.Equal(t, workerID, *claimed.LockedBy)
		require.NotNil(t, claimed.LockedUntil)
		assert.Equal(t, f.clock.Now().Add(time.Minute).UnixMilli(), claimed.LockedUntil.UnixMilli())
	})

	t.Run("empty queue", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.store.ClaimJob(context.Background(), uuid.New(), "student-queue", time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("FIFO within a priority and priority across", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		first := f.create(t, f.newJob("course-queue", queue.PriorityDefault))
		second := f.create(t, f.newJob("course-queue", queue.PriorityDefault))
		urgent := f.create(t, f.newJob("course-queue", queue.PriorityMax))
		low := f.create(t, f.newJob("course-queue", queue.PriorityMin))
		third := f.create(t, f.newJob("course-queue", queue.PriorityDefault))

		for _, want := range []uuid.UUID{urgent, first, second, third, low} {
			assert.Equal(t, want, f.claim(t, "course-queue").ID)
		}
	})

	t.Run("queues are isolated", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.create(t, f.newJob("course-queue", queue.PriorityDefault))

		_, err := f.store.ClaimJob(context.Background(), uuid.New(), "exam-queue", time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("delayed job becomes claimable at run time", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		j := f.newJob("semester-queue", queue.PriorityDefault)
		j.RunAt = f.clock.Now().Add(time.Minute)
		f.create(t, j)

		_, err := f.store.ClaimJob(context.Background(), uuid.New(), "semester-queue", time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
		assert.Equal(t, int64(1), f.stats(t, "semester-queue").Scheduled)

		f.clock.Advance(time.Minute + time.Second)
		due := f.stats(t, "semester-queue")
		assert.Equal(t, int64(1), due.Pending, "a due delayed job counts as pending before promotion")
		assert.Equal(t, int64(0), due.Scheduled)

		assert.Equal(t, j.ID, f.claim(t, "semester-queue").ID)
	})

	t.Run("expired lock is reclaimed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		j := f.newJob("batch-queue", queue.PriorityDefault)
		f.create(t, j)
		f.claim(t, "batch-queue")

		_, err := f.store.ClaimJob(context.Background(), uuid.New(), "batch-queue", time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)

		f.clock.Advance(2 * time.Minute)
		again := f.claim(t, "batch-queue")
		assert.Equal(t, j.ID, again.ID)
		assert.Equal(t, 0, again.Attempts)
	})

	t.Run("lapsed lock cannot finalize a reclaimed job", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		j := f.newJob("batch-queue", queue.PriorityDefault)
		f.create(t, j)
		first := f.claim(t, "batch-queue")

		f.clock.Advance(2 * time.Minute)
		second := f.claim(t, "batch-queue")
		require.Equal(t, first.ID, second.ID)

		assert.ErrorIs(t, f.store.CompleteJob(ctx, *first.LockedBy, j.ID), queue.ErrJobNotInFlight)
		assert.ErrorIs(t, f.store.RetryJob(ctx, *first.LockedBy, j.ID, "late", f.clock.Now()), queue.ErrJobNotInFlight)

		stored, err := f.store.GetJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStateInFlight, stored.State)
		assert.Equal(t, *second.LockedBy, *stored.LockedBy)
		assert.Equal(t, 0, stored.Attempts)

		require.NoError(t, f.store.CompleteJob(ctx, *second.LockedBy, j.ID))
	})

	t.Run("concurrent claims hand out each job once", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		const jobs = 30
		for range jobs {
			f.create(t, f.newJob("user-queue", queue.PriorityDefault))
		}

		var (
			mu      sync.Mutex
			claimed = make(map[uuid.UUID]int)
			wg      sync.WaitGroup
		)
		for range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					j, err := f.store.ClaimJob(context.Background(), uuid.New(), "user-queue", time.Minute)
					if err != nil {
						return
					}
					mu.Lock()
					claimed[j.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, claimed, jobs)
		for _, n := range claimed {
			assert.Equal(t, 1, n)
		}
	})
}

func TestStore_Dedup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	j := f.newJob("enrollment-queue", queue.PriorityDefault)
	j.DedupKey = "enrollment:9"
	first := f.create(t, j)

	dup := f.newJob("enrollment-queue", queue.PriorityDefault)
	dup.DedupKey = "enrollment:9"
	assert.Equal(t, first, f.create(t, dup))
	assert.Equal(t, int64(1), f.stats(t, "enrollment-queue").Pending)

	claimed := f.claim(t, "enrollment-queue")
	require.NoError(t, f.store.CompleteJob(context.Background(), *claimed.LockedBy, claimed.ID))

	fresh := f.newJob("enrollment-queue", queue.PriorityDefault)
	fresh.DedupKey = "enrollment:9"
	assert.Equal(t, fresh.ID, f.create(t, fresh))
}

func TestStore_Complete(t *testing.T) {
	t.Parallel()

	t.Run("deletes the job by default", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.create(t, f.newJob("exam-queue", queue.PriorityDefault))
		j := f.claim(t, "exam-queue")

		require.NoError(t, f.store.CompleteJob(context.Background(), *j.LockedBy, j.ID))
		assert.ErrorIs(t, f.store.CompleteJob(context.Background(), *j.LockedBy, j.ID), queue.ErrJobNotInFlight)

		_, err := f.store.GetJob(context.Background(), j.ID)
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
		assert.Equal(t, queue.Stats{Queue: "exam-queue", Completed: 1}, f.stats(t, "exam-queue"))
	})

	t.Run("keeps the job for the retention window", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, redisstore.WithCompletedRetention(time.Hour))
		f.create(t, f.newJob("exam-queue", queue.PriorityDefault))
		j := f.claim(t, "exam-queue")
		require.NoError(t, f.store.CompleteJob(context.Background(), *j.LockedBy, j.ID))

		stored, err := f.store.GetJob(context.Background(), j.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStateCompleted, stored.State)
		assert.NotNil(t, stored.CompletedAt)

		f.srv.FastForward(2 * time.Hour)
		_, err = f.store.GetJob(context.Background(), j.ID)
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
	})

	t.Run("pending job cannot be acknowledged", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		id := f.create(t, f.newJob("exam-queue", queue.PriorityDefault))
		ctx := context.Background()

		workerID := uuid.New()

		assert.ErrorIs(t, f.store.CompleteJob(ctx, workerID, id), queue.ErrJobNotInFlight)
		assert.ErrorIs(t, f.store.RetryJob(ctx, workerID, id, "x", time.Now()), queue.ErrJobNotInFlight)
		assert.ErrorIs(t, f.store.ReleaseJob(ctx, workerID, id), queue.ErrJobNotInFlight)
		assert.ErrorIs(t, f.store.ExtendLock(ctx, workerID, id, time.Minute), queue.ErrJobNotInFlight)
		_, err := f.store.MoveToDLQ(ctx, workerID, id, "x", 1)
		assert.ErrorIs(t, err, queue.ErrJobNotInFlight)

		assert.ErrorIs(t, f.store.CompleteJob(ctx, workerID, uuid.New()), queue.ErrJobNotInFlight)
	})

	t.Run("only the lock owner can acknowledge", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		f.create(t, f.newJob("exam-queue", queue.PriorityDefault))
		j := f.claim(t, "exam-queue")
		other := uuid.New()

		assert.ErrorIs(t, f.store.CompleteJob(ctx, other, j.ID), queue.ErrJobNotInFlight)
		assert.ErrorIs(t, f.store.RetryJob(ctx, other, j.ID, "x", time.Now()), queue.ErrJobNotInFlight)
		assert.ErrorIs(t, f.store.ReleaseJob(ctx, other, j.ID), queue.ErrJobNotInFlight)
		assert.ErrorIs(t, f.store.ExtendLock(ctx, other, j.ID, time.Minute), queue.ErrJobNotInFlight)
		_, err := f.store.MoveToDLQ(ctx, other, j.ID, "x", 1)
		assert.ErrorIs(t, err, queue.ErrJobNotInFlight)

		require.NoError(t, f.store.CompleteJob(ctx, *j.LockedBy, j.ID))
	})
}

func TestStore_Retry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.create(t, f.newJob("question-queue", queue.PriorityDefault))
	j := f.claim(t, "question-queue")

	runAt := f.clock.Now().Add(10 * time.Second)
	require.NoError(t, f.store.RetryJob(ctx, *j.LockedBy, j.ID, "downstream 503", runAt))

	stored, err := f.store.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStateRetryable, stored.State)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "downstream 503", stored.LastError)
	assert.Nil(t, stored.LockedBy)

	_, err = f.store.ClaimJob(ctx, uuid.New(), "question-queue", time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	assert.Equal(t, queue.Stats{Queue: "question-queue", Scheduled: 1}, f.stats(t, "question-queue"))

	f.clock.Advance(11 * time.Second)
	again := f.claim(t, "question-queue")
	assert.Equal(t, j.ID, again.ID)
	assert.Equal(t, 1, again.Attempts)
}

func TestStore_ReleaseAndExtend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.create(t, f.newJob("teacher-queue", queue.PriorityDefault))

	j := f.claim(t, "teacher-queue")
	require.NoError(t, f.store.ExtendLock(ctx, *j.LockedBy, j.ID, time.Hour))

	f.clock.Advance(30 * time.Minute)
	_, err := f.store.ClaimJob(ctx, uuid.New(), "teacher-queue", time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim, "extended lock must still hold")

	require.NoError(t, f.store.ReleaseJob(ctx, *j.LockedBy, j.ID))
	again := f.claim(t, "teacher-queue")
	assert.Equal(t, j.ID, again.ID)
	assert.Equal(t, 0, again.Attempts)
}

func TestStore_DeadLetters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := range 3 {
		j := f.newJob("exam-submission-queue", queue.PriorityDefault)
		j.Payload = []byte(fmt.Sprintf(`{"n":%d}`, i))
		j.DedupKey = "sub"
		f.create(t, j)

		claimed := f.claim(t, "exam-submission-queue")
		dl, err := f.store.MoveToDLQ(ctx, *claimed.LockedBy, claimed.ID, "grader crashed", 3)
		require.NoError(t, err)
		assert.Equal(t, "exam-submission-queue.dead", dl.DeadLetterQueue)
		ids = append(ids, claimed.ID)
	}

	letters, err := f.store.ListDeadLetters(ctx, "exam-submission-queue", 0)
	require.NoError(t, err)
	require.Len(t, letters, 3)
	assert.Equal(t, ids[2], letters[0].JobID, "newest first")
	assert.Equal(t, "grader crashed", letters[0].Reason)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.JSONEq(t, `{"n":2}`, string(letters[0].Payload))

	limited, err := f.store.ListDeadLetters(ctx, "exam-submission-queue", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	assert.Equal(t, int64(3), f.stats(t, "exam-submission-queue").DeadLettered)

	_, err = f.store.GetJob(ctx, ids[0])
	assert.ErrorIs(t, err, queue.ErrJobNotFound)

	raw, err := f.srv.List("campusjobs:dlq:exam-submission-queue.dead")
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &entry))
	assert.Contains(t, entry, "failed_at")
}

func TestStore_KeyPrefix(t *testing.T) {
	t.Parallel()

	f := newFixture(t, redisstore.WithKeyPrefix("tenant-a"))
	id := f.create(t, f.newJob("student-queue", queue.PriorityDefault))

	assert.True(t, f.srv.Exists("tenant-a:job:"+id.String()))
	assert.True(t, f.srv.Exists("tenant-a:queue:student-queue:ready"))
	assert.False(t, f.srv.Exists("campusjobs:job:"+id.String()))
}

func TestGuard(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	guard := redisstore.NewGuard(client, "", time.Hour)
	ctx := context.Background()

	done, err := guard.IsDone(ctx, "student-queue:1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, guard.MarkDone(ctx, "student-queue:1"))
	done, err = guard.IsDone(ctx, "student-queue:1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, srv.Exists("campusjobs:done:student-queue:1"))

	srv.FastForward(2 * time.Hour)
	done, err = guard.IsDone(ctx, "student-queue:1")
	require.NoError(t, err)
	assert.False(t, done)
}

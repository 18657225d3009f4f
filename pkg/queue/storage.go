package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new jobs.
type EnqueuerRepository interface {
	// CreateJob durably stores the job. When job.DedupKey is set and a non-terminal
	// job with the same queue and key exists, nothing is stored and the ID of the
	// existing job is returned.
	CreateJob(ctx context.Context, job *Job) (uuid.UUID, error)
}

// WorkerRepository defines the storage operations the worker runtime relies on.
// Every acknowledgement must be a no-op returning ErrJobNotInFlight when the job
// is not currently in flight under workerID's lock.
type WorkerRepository interface {
	// ClaimJob atomically moves the next ready job of queue to in-flight and locks it.
	// Jobs whose lock expired are ready again. Returns ErrNoJobToClaim when idle.
	ClaimJob(ctx context.Context, workerID uuid.UUID, queue string, lockDuration time.Duration) (*Job, error)

	// CompleteJob marks the job completed and releases its dedup key.
	CompleteJob(ctx context.Context, workerID, jobID uuid.UUID) error

	// RetryJob records the failure, increments Attempts and makes the job
	// claimable again at runAt.
	RetryJob(ctx context.Context, workerID, jobID uuid.UUID, errMsg string, runAt time.Time) error

	// MoveToDLQ marks the job failed-exhausted and appends it to the dead-letter
	// queue of its source queue.
	MoveToDLQ(ctx context.Context, workerID, jobID uuid.UUID, reason string, attempts int) (*DeadLetter, error)

	// ReleaseJob returns an in-flight job to pending without consuming an attempt.
	ReleaseJob(ctx context.Context, workerID, jobID uuid.UUID) error

	// ExtendLock pushes the lock deadline of a long-running job.
	ExtendLock(ctx context.Context, workerID, jobID uuid.UUID, duration time.Duration) error
}

// InspectorRepository exposes read-only views for operators.
type InspectorRepository interface {
	// ListDeadLetters returns up to limit dead letters of the source queue, newest first.
	ListDeadLetters(ctx context.Context, queue string, limit int) ([]*DeadLetter, error)

	// Stats returns counters for the queue.
	Stats(ctx context.Context, queue string) (*Stats, error)

	// GetJob returns an unfinished job, or ErrJobNotFound. Backends that retain
	// completed jobs return those too.
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
}

// Storage is implemented by every broker driver.
type Storage interface {
	EnqueuerRepository
	WorkerRepository
	InspectorRepository
}

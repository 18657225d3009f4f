package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Storage = (*MemoryStorage)(nil)

type dedupIndex struct {
	queue string
	key   string
}

// MemoryStorage implements Storage in process memory for tests and local development.
// Nothing survives a restart, so it offers no durability guarantee.
type MemoryStorage struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*Job
	seq       map[uuid.UUID]uint64
	nextSeq   uint64
	dedup     map[dedupIndex]uuid.UUID
	dlq       map[string][]*DeadLetter
	completed map[string]int64
	now       func() time.Time

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		jobs:      make(map[uuid.UUID]*Job),
		seq:       make(map[uuid.UUID]uint64),
		dedup:     make(map[dedupIndex]uuid.UUID),
		dlq:       make(map[string][]*DeadLetter),
		completed: make(map[string]int64),
		now:       time.Now,
		done:      make(chan struct{}),
	}

	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()

	return ms
}

// Close stops the background goroutines
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// CreateJob implements EnqueuerRepository
func (ms *MemoryStorage) CreateJob(_ context.Context, job *Job) (uuid.UUID, error) {
	if job == nil {
		return uuid.Nil, errors.New("job cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return uuid.Nil, fmt.Errorf("job with ID %s already exists", job.ID)
	}

	if job.DedupKey != "" {
		idx := dedupIndex{queue: job.Queue, key: job.DedupKey}
		if existing, ok := ms.dedup[idx]; ok {
			return existing, nil
		}
		ms.dedup[idx] = job.ID
	}

	jobCopy := *job
	ms.jobs[job.ID] = &jobCopy
	ms.nextSeq++
	ms.seq[job.ID] = ms.nextSeq

	return job.ID, nil
}

// ClaimJob implements WorkerRepository: highest priority first, FIFO within a priority.
func (ms *MemoryStorage) ClaimJob(_ context.Context, workerID uuid.UUID, queue string, lockDuration time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()

	var selected *Job
	for _, job := range ms.jobs {
		if job.Queue != queue || !ms.claimable(job, now) {
			continue
		}
		if selected == nil || job.Priority > selected.Priority ||
			(job.Priority == selected.Priority && ms.seq[job.ID] < ms.seq[selected.ID]) {
			selected = job
		}
	}

	if selected == nil {
		return nil, ErrNoJobToClaim
	}

	lockedUntil := now.Add(lockDuration)
	selected.State = JobStateInFlight
	selected.LockedUntil = &lockedUntil
	selected.LockedBy = &workerID

	jobCopy := *selected
	return &jobCopy, nil
}

func (ms *MemoryStorage) claimable(job *Job, now time.Time) bool {
	switch job.State {
	case JobStatePending, JobStateRetryable:
		return !job.RunAt.After(now)
	case JobStateInFlight:
		return job.LockedUntil != nil && job.LockedUntil.Before(now)
	default:
		return false
	}
}

// CompleteJob implements WorkerRepository
func (ms *MemoryStorage) CompleteJob(_ context.Context, workerID, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.inFlight(workerID, jobID)
	if err != nil {
		return err
	}

	ms.releaseDedup(job)
	ms.completed[job.Queue]++
	delete(ms.jobs, jobID)
	delete(ms.seq, jobID)

	return nil
}

// RetryJob implements WorkerRepository
func (ms *MemoryStorage) RetryJob(_ context.Context, workerID, jobID uuid.UUID, errMsg string, runAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.inFlight(workerID, jobID)
	if err != nil {
		return err
	}

	job.State = JobStateRetryable
	job.Attempts++
	job.LastError = errMsg
	job.RunAt = runAt
	job.LockedUntil = nil
	job.LockedBy = nil

	return nil
}

// MoveToDLQ implements WorkerRepository
func (ms *MemoryStorage) MoveToDLQ(_ context.Context, workerID, jobID uuid.UUID, reason string, attempts int) (*DeadLetter, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.inFlight(workerID, jobID)
	if err != nil {
		return nil, err
	}

	dl := NewDeadLetter(job, reason, attempts, ms.now())
	ms.dlq[job.Queue] = append(ms.dlq[job.Queue], dl)

	ms.releaseDedup(job)
	delete(ms.jobs, jobID)
	delete(ms.seq, jobID)

	dlCopy := *dl
	return &dlCopy, nil
}

// ReleaseJob implements WorkerRepository
func (ms *MemoryStorage) ReleaseJob(_ context.Context, workerID, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.inFlight(workerID, jobID)
	if err != nil {
		return err
	}

	ms.unlock(job)
	return nil
}

// ExtendLock implements WorkerRepository
func (ms *MemoryStorage) ExtendLock(_ context.Context, workerID, jobID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.inFlight(workerID, jobID)
	if err != nil {
		return err
	}

	lockedUntil := ms.now().Add(duration)
	job.LockedUntil = &lockedUntil
	return nil
}

// ListDeadLetters implements InspectorRepository
func (ms *MemoryStorage) ListDeadLetters(_ context.Context, queue string, limit int) ([]*DeadLetter, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entries := ms.dlq[queue]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	result := make([]*DeadLetter, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		dlCopy := *entries[i]
		result = append(result, &dlCopy)
	}
	return result, nil
}

// Stats implements InspectorRepository
func (ms *MemoryStorage) Stats(_ context.Context, queue string) (*Stats, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	stats := &Stats{
		Queue:        queue,
		Completed:    ms.completed[queue],
		DeadLettered: int64(len(ms.dlq[queue])),
	}

	for _, job := range ms.jobs {
		if job.Queue != queue {
			continue
		}
		switch {
		case job.State == JobStateInFlight:
			stats.InFlight++
		case job.RunAt.After(now):
			stats.Scheduled++
		default:
			stats.Pending++
		}
	}

	return stats, nil
}

// GetJob returns a copy of a job that has not reached a terminal state.
func (ms *MemoryStorage) GetJob(_ context.Context, jobID uuid.UUID) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	jobCopy := *job
	return &jobCopy, nil
}

// inFlight returns the job only while workerID holds its lock.
func (ms *MemoryStorage) inFlight(workerID, jobID uuid.UUID) (*Job, error) {
	job, ok := ms.jobs[jobID]
	if !ok || job.State != JobStateInFlight || job.LockedBy == nil || *job.LockedBy != workerID {
		return nil, ErrJobNotInFlight
	}
	return job, nil
}

func (ms *MemoryStorage) unlock(job *Job) {
	job.State = JobStatePending
	job.LockedUntil = nil
	job.LockedBy = nil
}

func (ms *MemoryStorage) releaseDedup(job *Job) {
	if job.DedupKey == "" {
		return
	}
	idx := dedupIndex{queue: job.Queue, key: job.DedupKey}
	if ms.dedup[idx] == job.ID {
		delete(ms.dedup, idx)
	}
}

// lockExpirationManager returns jobs whose worker died back to pending
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.done:
			return
		case <-ms.lockTicker.C:
			ms.releaseExpiredLocks()
		}
	}
}

func (ms *MemoryStorage) releaseExpiredLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	for _, job := range ms.jobs {
		if job.State == JobStateInFlight && job.LockedUntil != nil && job.LockedUntil.Before(now) {
			ms.unlock(job)
		}
	}
}

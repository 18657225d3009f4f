package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

// CreateJob stores the job hash and schedules it on the ready or delayed set.
// With a dedup key held by an unfinished job, the existing job ID is returned.
func (s *Store) CreateJob(ctx context.Context, j *queue.Job) (uuid.UUID, error) {
	if j == nil {
		return uuid.Nil, errors.New("redisstore: job cannot be nil")
	}

	jID := j.ID.String()
	keys := []string{
		s.jobKey(jID),
		s.readyKey(j.Queue),
		s.delayedKey(j.Queue),
		s.seqKey(j.Queue),
		s.dedupKey(j.Queue, j.DedupKey),
	}
	args := []any{
		jID,
		j.Queue,
		string(j.Payload),
		strconv.Itoa(int(j.Priority)),
		strconv.Itoa(j.MaxAttempts),
		j.DedupKey,
		strconv.FormatInt(j.RunAt.UnixMilli(), 10),
		strconv.FormatInt(j.EnqueuedAt.UnixMilli(), 10),
		strconv.FormatInt(s.now().UnixMilli(), 10),
	}

	res, err := enqueueScript.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return uuid.Nil, fmt.Errorf("redisstore: enqueue job: %w", err)
	}

	id, err := uuid.Parse(res)
	if err != nil {
		return uuid.Nil, fmt.Errorf("redisstore: parse job id: %w", err)
	}
	return id, nil
}

// ClaimJob requeues expired locks, promotes due delayed jobs and pops the
// best ready job, all in one script.
func (s *Store) ClaimJob(ctx context.Context, workerID uuid.UUID, q string, lockDuration time.Duration) (*queue.Job, error) {
	now := s.now()
	keys := []string{s.readyKey(q), s.delayedKey(q), s.inflightKey(q)}
	args := []any{
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(lockDuration).UnixMilli(), 10),
		workerID.String(),
		s.jobKeyPrefix(),
	}

	res, err := claimScript.Run(ctx, s.client, keys, args...).StringSlice()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, queue.ErrNoJobToClaim
		}
		return nil, fmt.Errorf("redisstore: claim job: %w", err)
	}

	return mapToJob(pairsToMap(res))
}

// CompleteJob implements queue.WorkerRepository.
func (s *Store) CompleteJob(ctx context.Context, workerID, jobID uuid.UUID) error {
	h, err := s.jobHeader(ctx, jobID)
	if err != nil {
		return err
	}

	keys := []string{
		s.jobKey(jobID.String()),
		s.inflightKey(h.queue),
		s.completedKey(h.queue),
		s.dedupKey(h.queue, h.dedupKey),
	}
	args := []any{
		jobID.String(),
		strconv.FormatInt(int64(s.completedRetention/time.Second), 10),
		strconv.FormatInt(s.now().UnixMilli(), 10),
		workerID.String(),
	}
	return s.runAck(ctx, completeScript, "complete", keys, args)
}

// RetryJob implements queue.WorkerRepository.
func (s *Store) RetryJob(ctx context.Context, workerID, jobID uuid.UUID, errMsg string, runAt time.Time) error {
	h, err := s.jobHeader(ctx, jobID)
	if err != nil {
		return err
	}

	keys := []string{s.jobKey(jobID.String()), s.inflightKey(h.queue), s.delayedKey(h.queue)}
	args := []any{jobID.String(), errMsg, strconv.FormatInt(runAt.UnixMilli(), 10), workerID.String()}
	return s.runAck(ctx, retryScript, "retry", keys, args)
}

// MoveToDLQ implements queue.WorkerRepository.
func (s *Store) MoveToDLQ(ctx context.Context, workerID, jobID uuid.UUID, reason string, attempts int) (*queue.DeadLetter, error) {
	vals, err := s.client.HGetAll(ctx, s.jobKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: load job: %w", err)
	}
	if len(vals) == 0 {
		return nil, queue.ErrJobNotInFlight
	}
	j, err := mapToJob(vals)
	if err != nil {
		return nil, err
	}

	dl := queue.NewDeadLetter(j, reason, attempts, s.now())
	entry, err := json.Marshal(dl)
	if err != nil {
		return nil, fmt.Errorf("redisstore: encode dead letter: %w", err)
	}

	keys := []string{
		s.jobKey(jobID.String()),
		s.inflightKey(j.Queue),
		s.dlqKey(j.Queue),
		s.dedupKey(j.Queue, j.DedupKey),
	}
	if err := s.runAck(ctx, deadLetterScript, "dead-letter", keys, []any{jobID.String(), string(entry), workerID.String()}); err != nil {
		return nil, err
	}
	return dl, nil
}

// ReleaseJob implements queue.WorkerRepository.
func (s *Store) ReleaseJob(ctx context.Context, workerID, jobID uuid.UUID) error {
	h, err := s.jobHeader(ctx, jobID)
	if err != nil {
		return err
	}

	keys := []string{s.jobKey(jobID.String()), s.inflightKey(h.queue), s.readyKey(h.queue)}
	return s.runAck(ctx, releaseScript, "release", keys, []any{jobID.String(), workerID.String()})
}

// ExtendLock implements queue.WorkerRepository.
func (s *Store) ExtendLock(ctx context.Context, workerID, jobID uuid.UUID, duration time.Duration) error {
	h, err := s.jobHeader(ctx, jobID)
	if err != nil {
		return err
	}

	keys := []string{s.jobKey(jobID.String()), s.inflightKey(h.queue)}
	args := []any{jobID.String(), strconv.FormatInt(s.now().Add(duration).UnixMilli(), 10), workerID.String()}
	return s.runAck(ctx, extendScript, "extend lock", keys, args)
}

// GetJob retrieves a job that has not reached a terminal state, or a completed
// one still inside the retention window.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*queue.Job, error) {
	vals, err := s.client.HGetAll(ctx, s.jobKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, queue.ErrJobNotFound
	}
	return mapToJob(vals)
}

func (s *Store) runAck(ctx context.Context, script *goredis.Script, op string, keys []string, args []any) error {
	n, err := script.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("redisstore: %s job: %w", op, err)
	}
	if n == 0 {
		return queue.ErrJobNotInFlight
	}
	return nil
}

type jobHeader struct {
	queue    string
	dedupKey string
}

// jobHeader reads the fields needed to build script keys. The scripts
// re-check the state, so a concurrent transition in between is harmless.
func (s *Store) jobHeader(ctx context.Context, jobID uuid.UUID) (jobHeader, error) {
	vals, err := s.client.HMGet(ctx, s.jobKey(jobID.String()), "queue", "dedup_key").Result()
	if err != nil {
		return jobHeader{}, fmt.Errorf("redisstore: load job: %w", err)
	}

	q, _ := vals[0].(string)
	if q == "" {
		return jobHeader{}, queue.ErrJobNotInFlight
	}
	dk, _ := vals[1].(string)
	return jobHeader{queue: q, dedupKey: dk}, nil
}

func pairsToMap(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return m
}

func mapToJob(m map[string]string) (*queue.Job, error) {
	jID, err := uuid.Parse(m["id"])
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])        //nolint:errcheck // written by our own scripts
	attempts, _ := strconv.Atoi(m["attempts"])        //nolint:errcheck // written by our own scripts
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // written by our own scripts

	j := &queue.Job{
		ID:          jID,
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		State:       queue.JobState(m["state"]),
		Priority:    queue.Priority(priority),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		DedupKey:    m["dedup_key"],
		RunAt:       parseMillis(m["run_at"]),
		EnqueuedAt:  parseMillis(m["enqueued_at"]),
		LastError:   m["last_error"],
	}

	if v := m["locked_until"]; v != "" {
		t := parseMillis(v)
		j.LockedUntil = &t
	}
	if v := m["locked_by"]; v != "" {
		if wID, err := uuid.Parse(v); err == nil {
			j.LockedBy = &wID
		}
	}
	if v := m["completed_at"]; v != "" {
		t := parseMillis(v)
		j.CompletedAt = &t
	}
	return j, nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

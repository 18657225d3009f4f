package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/campusjobs/pkg/pg"
	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

const jobColumns = `id::text, queue, payload, state, priority, attempts, max_attempts,
	dedup_key, last_error, run_at, enqueued_at, locked_by::text, locked_until, completed_at`

// CreateJob inserts the job. When an unfinished job holds the same dedup key,
// nothing is inserted and the existing job ID is returned.
func (s *Store) CreateJob(ctx context.Context, j *queue.Job) (uuid.UUID, error) {
	if j == nil {
		return uuid.Nil, errors.New("pgstore: job cannot be nil")
	}

	// The holder of the key may finish between the insert and the lookup;
	// the next round then inserts.
	for range 3 {
		var id string
		err := s.pool.QueryRow(ctx, `
			INSERT INTO queue_jobs (
				id, queue, payload, state, priority, max_attempts, dedup_key, run_at, enqueued_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (queue, dedup_key)
				WHERE dedup_key <> '' AND state IN ('pending', 'in-flight', 'failed-retryable')
				DO NOTHING
			RETURNING id::text`,
			j.ID.String(), j.Queue, j.Payload, string(queue.JobStatePending), int16(j.Priority),
			j.MaxAttempts, j.DedupKey, j.RunAt, j.EnqueuedAt,
		).Scan(&id)
		if err == nil {
			return uuid.Parse(id)
		}
		if !pg.IsNotFoundError(err) {
			return uuid.Nil, fmt.Errorf("pgstore: enqueue job: %w", err)
		}

		err = s.pool.QueryRow(ctx, `
			SELECT id::text FROM queue_jobs
			WHERE queue = $1 AND dedup_key = $2
			  AND state IN ('pending', 'in-flight', 'failed-retryable')`,
			j.Queue, j.DedupKey,
		).Scan(&id)
		if err == nil {
			return uuid.Parse(id)
		}
		if !pg.IsNotFoundError(err) {
			return uuid.Nil, fmt.Errorf("pgstore: lookup dedup key: %w", err)
		}
	}

	return uuid.Nil, fmt.Errorf("pgstore: enqueue job: dedup key %q kept changing hands", j.DedupKey)
}

// ClaimJob locks the best due job of the queue, including jobs whose lock
// expired, ordered by priority then enqueue sequence.
func (s *Store) ClaimJob(ctx context.Context, workerID uuid.UUID, q string, lockDuration time.Duration) (*queue.Job, error) {
	now := s.now()
	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id AS next_id FROM queue_jobs
			WHERE queue = $1
			  AND (
				(state IN ('pending', 'failed-retryable') AND run_at <= $2)
				OR (state = 'in-flight' AND locked_until <= $2)
			  )
			ORDER BY priority DESC, seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_jobs
		SET state = 'in-flight', locked_by = $3, locked_until = $4
		FROM next
		WHERE id = next.next_id
		RETURNING `+jobColumns,
		q, now, workerID.String(), now.Add(lockDuration),
	)

	j, err := scanJob(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, queue.ErrNoJobToClaim
		}
		return nil, fmt.Errorf("pgstore: claim job: %w", err)
	}
	return j, nil
}

// CompleteJob deletes the job, or marks it completed when retention is on,
// and bumps the queue's completed counter.
func (s *Store) CompleteJob(ctx context.Context, workerID, jobID uuid.UUID) error {
	now := s.now()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			q   string
			err error
		)
		if s.completedRetention > 0 {
			err = tx.QueryRow(ctx, `
				UPDATE queue_jobs
				SET state = 'completed', completed_at = $2, locked_by = NULL, locked_until = NULL
				WHERE id = $1 AND state = 'in-flight' AND locked_by = $3
				RETURNING queue`,
				jobID.String(), now, workerID.String(),
			).Scan(&q)
		} else {
			err = tx.QueryRow(ctx, `
				DELETE FROM queue_jobs WHERE id = $1 AND state = 'in-flight' AND locked_by = $2 RETURNING queue`,
				jobID.String(), workerID.String(),
			).Scan(&q)
		}
		if err != nil {
			if pg.IsNotFoundError(err) {
				return queue.ErrJobNotInFlight
			}
			return fmt.Errorf("pgstore: complete job: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO queue_counters (queue, completed) VALUES ($1, 1)
			ON CONFLICT (queue) DO UPDATE SET completed = queue_counters.completed + 1`,
			q,
		); err != nil {
			return fmt.Errorf("pgstore: count completed job: %w", err)
		}

		if s.completedRetention > 0 {
			if _, err := tx.Exec(ctx, `
				DELETE FROM queue_jobs
				WHERE queue = $1 AND state = 'completed' AND completed_at < $2`,
				q, now.Add(-s.completedRetention),
			); err != nil {
				return fmt.Errorf("pgstore: purge completed jobs: %w", err)
			}
		}
		return nil
	})
}

// RetryJob implements queue.WorkerRepository.
func (s *Store) RetryJob(ctx context.Context, workerID, jobID uuid.UUID, errMsg string, runAt time.Time) error {
	return s.ack(ctx, "retry", `
		UPDATE queue_jobs
		SET state = 'failed-retryable', attempts = attempts + 1, last_error = $2, run_at = $3,
		    locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND state = 'in-flight' AND locked_by = $4`,
		jobID.String(), errMsg, runAt, workerID.String(),
	)
}

// ReleaseJob implements queue.WorkerRepository.
func (s *Store) ReleaseJob(ctx context.Context, workerID, jobID uuid.UUID) error {
	return s.ack(ctx, "release", `
		UPDATE queue_jobs
		SET state = 'pending', locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND state = 'in-flight' AND locked_by = $2`,
		jobID.String(), workerID.String(),
	)
}

// ExtendLock implements queue.WorkerRepository.
func (s *Store) ExtendLock(ctx context.Context, workerID, jobID uuid.UUID, duration time.Duration) error {
	return s.ack(ctx, "extend lock", `
		UPDATE queue_jobs SET locked_until = $2
		WHERE id = $1 AND state = 'in-flight' AND locked_by = $3`,
		jobID.String(), s.now().Add(duration), workerID.String(),
	)
}

// MoveToDLQ removes the job and records it in queue_dead_letters in one transaction.
func (s *Store) MoveToDLQ(ctx context.Context, workerID, jobID uuid.UUID, reason string, attempts int) (*queue.DeadLetter, error) {
	var dl *queue.DeadLetter
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		j, err := scanJob(tx.QueryRow(ctx, `
			DELETE FROM queue_jobs WHERE id = $1 AND state = 'in-flight' AND locked_by = $2
			RETURNING `+jobColumns,
			jobID.String(), workerID.String(),
		))
		if err != nil {
			if pg.IsNotFoundError(err) {
				return queue.ErrJobNotInFlight
			}
			return fmt.Errorf("pgstore: remove dead job: %w", err)
		}

		dl = queue.NewDeadLetter(j, reason, attempts, s.now())
		if _, err := tx.Exec(ctx, `
			INSERT INTO queue_dead_letters (
				job_id, queue, dead_letter_queue, payload, reason, attempts, enqueued_at, failed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			dl.JobID.String(), dl.Queue, dl.DeadLetterQueue, dl.Payload, dl.Reason,
			dl.Attempts, dl.EnqueuedAt, dl.FailedAt,
		); err != nil {
			return fmt.Errorf("pgstore: insert dead letter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dl, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*queue.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM queue_jobs WHERE id = $1`, jobID.String()))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, queue.ErrJobNotFound
		}
		return nil, fmt.Errorf("pgstore: get job: %w", err)
	}
	return j, nil
}

func (s *Store) ack(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("pgstore: %s job: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrJobNotInFlight
	}
	return nil
}

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		j           queue.Job
		id          string
		state       string
		priority    int16
		lockedBy    *string
		lockedUntil *time.Time
		completedAt *time.Time
	)
	if err := row.Scan(
		&id, &j.Queue, &j.Payload, &state, &priority, &j.Attempts, &j.MaxAttempts,
		&j.DedupKey, &j.LastError, &j.RunAt, &j.EnqueuedAt, &lockedBy, &lockedUntil, &completedAt,
	); err != nil {
		return nil, err
	}

	jID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse job id: %w", err)
	}
	j.ID = jID
	j.State = queue.JobState(state)
	j.Priority = queue.Priority(priority)
	j.LockedUntil = lockedUntil
	j.CompletedAt = completedAt
	if lockedBy != nil {
		if wID, err := uuid.Parse(*lockedBy); err == nil {
			j.LockedBy = &wID
		}
	}
	return &j, nil
}

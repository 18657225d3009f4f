package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

// ListDeadLetters returns up to limit dead letters of the source queue, newest
// first. A non-positive limit returns all of them.
func (s *Store) ListDeadLetters(ctx context.Context, q string, limit int) ([]*queue.DeadLetter, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT job_id::text, queue, dead_letter_queue, payload, reason, attempts, enqueued_at, failed_at
		FROM queue_dead_letters
		WHERE queue = $1
		ORDER BY id DESC
		LIMIT $2`,
		q, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list dead letters: %w", err)
	}

	letters, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*queue.DeadLetter, error) {
		var (
			dl    queue.DeadLetter
			jobID string
		)
		if err := row.Scan(&jobID, &dl.Queue, &dl.DeadLetterQueue, &dl.Payload, &dl.Reason,
			&dl.Attempts, &dl.EnqueuedAt, &dl.FailedAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(jobID)
		if err != nil {
			return nil, err
		}
		dl.JobID = id
		return &dl, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan dead letters: %w", err)
	}
	return letters, nil
}

// Stats implements queue.InspectorRepository.
func (s *Store) Stats(ctx context.Context, q string) (*queue.Stats, error) {
	stats := &queue.Stats{Queue: q}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE state IN ('pending', 'failed-retryable') AND run_at <= $2),
			COUNT(*) FILTER (WHERE state IN ('pending', 'failed-retryable') AND run_at > $2),
			COUNT(*) FILTER (WHERE state = 'in-flight'),
			COALESCE((SELECT completed FROM queue_counters WHERE queue = $1), 0),
			(SELECT COUNT(*) FROM queue_dead_letters WHERE queue = $1)
		FROM queue_jobs
		WHERE queue = $1`,
		q, s.now(),
	).Scan(&stats.Pending, &stats.Scheduled, &stats.InFlight, &stats.Completed, &stats.DeadLettered)
	if err != nil {
		return nil, fmt.Errorf("pgstore: queue stats: %w", err)
	}
	return stats, nil
}

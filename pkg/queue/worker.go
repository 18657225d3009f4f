package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// errAbandoned is the cancellation cause of jobs cut off by an expired shutdown grace period.
var errAbandoned = errors.New("job abandoned on shutdown")

// DeadLetterHook is notified after a job was routed to its dead-letter queue.
type DeadLetterHook func(ctx context.Context, dl *DeadLetter)

// Worker runs the consumption loop of one Registration: it claims jobs from
// the bound queue up to the registration's concurrency, executes the handler
// and finalizes each job as completed, retried or dead-lettered.
type Worker struct {
	repo     WorkerRepository
	reg      Registration
	workerID uuid.UUID
	sem      chan struct{}
	wake     chan struct{}
	limiter  *rate.Limiter
	wg       sync.WaitGroup
	mu       sync.Mutex

	// Configuration
	pullInterval    time.Duration
	lockTimeout     time.Duration
	ackTimeout      time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	metrics         *Metrics
	deadLetterHooks []DeadLetterHook

	// State management
	cancel   context.CancelFunc
	loopDone chan struct{}

	activeMu sync.Mutex
	active   map[uuid.UUID]context.CancelCauseFunc

	// claimFailures is only touched by the loop goroutine.
	claimFailures int
}

// NewWorker creates a worker for reg.
func NewWorker(repo WorkerRepository, reg Registration, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	reg, err := reg.Validate()
	if err != nil {
		return nil, err
	}

	options := &workerOptions{
		pullInterval:    time.Second,
		lockTimeout:     5 * time.Minute,
		ackTimeout:      10 * time.Second,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	// The lock must outlive the handler timeout, or a slow but healthy job
	// would be handed to a second worker.
	lockTimeout := options.lockTimeout
	if lockTimeout < 2*reg.Timeout {
		lockTimeout = 2 * reg.Timeout
	}

	w := &Worker{
		repo:            repo,
		reg:             reg,
		workerID:        uuid.New(),
		sem:             make(chan struct{}, reg.Concurrency),
		wake:            make(chan struct{}, 1),
		pullInterval:    options.pullInterval,
		lockTimeout:     lockTimeout,
		ackTimeout:      options.ackTimeout,
		shutdownTimeout: options.shutdownTimeout,
		logger: options.logger.With(
			slog.String("worker", reg.Name),
			slog.String("queue", reg.Queue)),
		metrics:         options.metrics,
		deadLetterHooks: options.deadLetterHooks,
		active:          make(map[uuid.UUID]context.CancelCauseFunc),
	}

	if reg.RateLimit > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(reg.RateLimit), reg.RateBurst)
	}

	return w, nil
}

// ID returns the unique identifier this worker uses when locking jobs.
func (w *Worker) ID() uuid.UUID {
	return w.workerID
}

// Registration returns the registration the worker consumes for.
func (w *Worker) Registration() Registration {
	return w.reg
}

// Start begins processing jobs in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrWorkerAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.loopDone = make(chan struct{})
	w.claimFailures = 0

	go w.run(loopCtx, w.loopDone)

	hostname, _ := os.Hostname()
	w.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.String("hostname", hostname),
		slog.Int("concurrency", cap(w.sem)),
		slog.Int("max_attempts", w.reg.Retry.MaxAttempts))

	return nil
}

// Stop stops claiming new jobs and waits for in-flight executions. When ctx
// expires first, the remaining executions are cancelled and their jobs are
// released back to pending for redelivery.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}
	cancel, loopDone := w.cancel, w.loopDone
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	<-loopDone

	w.logger.Info("worker stopping, waiting for active jobs to complete",
		slog.String("worker_id", w.workerID.String()))

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("shutdown grace period elapsed, abandoning active jobs",
			slog.String("worker_id", w.workerID.String()))
		w.abandonActive()
		<-done
	}

	w.logger.Info("worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run starts the worker and returns a function suitable for errgroup.
// The worker stops when ctx is done, allowing the shutdown timeout for in-flight jobs.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()
		return w.Stop(stopCtx)
	}
}

// ExtendLock pushes the lock of a long-running job held by this worker.
func (w *Worker) ExtendLock(ctx context.Context, jobID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, w.workerID, jobID, extension)
}

// run is the main consumption loop. It polls every pullInterval and right
// after a slot frees up, and backs off while the broker is failing.
func (w *Worker) run(ctx context.Context, loopDone chan struct{}) {
	defer close(loopDone)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-w.wake:
		}

		w.fill(ctx)
		timer.Reset(w.nextPoll())
	}
}

// fill claims jobs until every slot is busy or the queue has nothing ready.
func (w *Worker) fill(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case w.sem <- struct{}{}:
		default:
			w.logger.Debug("all worker slots busy")
			return
		}

		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				<-w.sem
				return
			}
		}

		job, err := w.repo.ClaimJob(ctx, w.workerID, w.reg.Queue, w.lockTimeout)
		if err != nil || job == nil {
			<-w.sem
			if err == nil || errors.Is(err, ErrNoJobToClaim) || ctx.Err() != nil {
				w.claimFailures = 0
				return
			}

			w.claimFailures++
			w.metrics.claimFailed(w.reg.Queue)
			w.logger.Error("failed to claim job, pausing consumption",
				slog.String("worker_id", w.workerID.String()),
				slog.Int("consecutive_failures", w.claimFailures),
				slog.Duration("next_attempt_in", w.nextPoll()),
				slog.String("error", errors.Join(ErrFailedToClaimJob, err).Error()))
			return
		}

		w.claimFailures = 0
		w.wg.Add(1)
		go w.process(job)
	}
}

func (w *Worker) nextPoll() time.Duration {
	if w.claimFailures == 0 {
		return w.pullInterval
	}
	return w.pullInterval << min(w.claimFailures, 3)
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// process executes one claimed job and reports the outcome to the broker.
func (w *Worker) process(job *Job) {
	defer w.wg.Done()
	defer w.signal()
	defer func() { <-w.sem }()

	w.metrics.started(job.Queue)
	defer w.metrics.finished(job.Queue)

	w.logger.Debug("claimed job",
		slog.String("job_id", job.ID.String()),
		slog.Int("attempt", job.Attempts+1))

	// Handler context is detached from the worker lifecycle so graceful
	// shutdown lets running jobs finish.
	baseCtx, cancelBase := context.WithCancelCause(context.Background())
	defer cancelBase(nil)
	w.track(job.ID, cancelBase)
	defer w.untrack(job.ID)

	execCtx, cancelExec := context.WithTimeoutCause(baseCtx, w.reg.Timeout, ErrJobTimeout)
	defer cancelExec()

	start := time.Now()
	execErr := w.execute(execCtx, job)
	elapsed := time.Since(start)

	ackCtx, cancelAck := context.WithTimeout(context.Background(), w.ackTimeout)
	defer cancelAck()

	switch {
	case errors.Is(context.Cause(baseCtx), errAbandoned):
		w.handleAbandoned(ackCtx, job)
	case execErr == nil:
		w.handleSuccess(ackCtx, job, elapsed)
	case errors.Is(execErr, ErrPoisonPayload):
		// Retrying cannot fix the payload, so no attempt is consumed.
		w.handleDeadLetter(ackCtx, job, execErr, job.Attempts, elapsed)
	default:
		w.handleFailure(ackCtx, job, execErr, elapsed)
	}
}

// execute runs the handler, bounded by ctx. A handler that ignores its context
// is left running in the background once ctx is done.
func (w *Worker) execute(ctx context.Context, job *Job) error {
	done := make(chan error, 1)
	snapshot := *job

	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("handler panicked",
					slog.String("job_id", job.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				done <- fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			}
		}()
		done <- w.reg.Handler.Handle(WithJob(ctx, &snapshot), json.RawMessage(job.Payload))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		return context.Cause(ctx)
	}
}

// handleSuccess acknowledges a completed job
func (w *Worker) handleSuccess(ctx context.Context, job *Job, elapsed time.Duration) {
	if err := w.repo.CompleteJob(ctx, w.workerID, job.ID); err != nil {
		// The job stays claimable after its lock expires and will run again.
		w.logger.Error("failed to mark job as completed",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	w.metrics.processed(job.Queue, OutcomeCompleted, elapsed)
	w.logger.Info("job completed",
		slog.String("job_id", job.ID.String()),
		slog.Int("attempt", job.Attempts+1),
		slog.Duration("duration", elapsed))
}

// handleFailure retries the job with backoff, or dead-letters it once the
// attempt budget is spent.
func (w *Worker) handleFailure(ctx context.Context, job *Job, execErr error, elapsed time.Duration) {
	attempts := job.Attempts + 1
	maxAttempts := w.reg.Retry.maxAttemptsFor(job)

	if attempts >= maxAttempts {
		w.handleDeadLetter(ctx, job, execErr, attempts, elapsed)
		return
	}

	delay := w.reg.Retry.Backoff(attempts)
	if err := w.repo.RetryJob(ctx, w.workerID, job.ID, execErr.Error(), time.Now().Add(delay)); err != nil {
		w.logger.Error("failed to schedule job retry",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	w.metrics.processed(job.Queue, OutcomeRetried, elapsed)
	w.logger.Warn("job failed, retry scheduled",
		slog.String("job_id", job.ID.String()),
		slog.Int("attempt", attempts),
		slog.Int("max_attempts", maxAttempts),
		slog.Duration("delay", delay),
		slog.Duration("duration", elapsed),
		slog.String("error", execErr.Error()))
}

func (w *Worker) handleDeadLetter(ctx context.Context, job *Job, execErr error, attempts int, elapsed time.Duration) {
	dl, err := w.repo.MoveToDLQ(ctx, w.workerID, job.ID, execErr.Error(), attempts)
	if err != nil {
		// Left in flight; lock expiry makes it claimable again, so it is never lost.
		w.logger.Error("failed to move job to dead letter queue",
			slog.String("job_id", job.ID.String()),
			slog.String("error", errors.Join(ErrFailedToMoveToDLQ, err).Error()))
		return
	}

	w.metrics.processed(job.Queue, OutcomeDeadLettered, elapsed)
	w.logger.Warn("job moved to dead letter queue",
		slog.String("job_id", job.ID.String()),
		slog.String("dead_letter_queue", dl.DeadLetterQueue),
		slog.Int("attempts", attempts),
		slog.String("error", execErr.Error()))

	for _, hook := range w.deadLetterHooks {
		hook(ctx, dl)
	}
}

func (w *Worker) handleAbandoned(ctx context.Context, job *Job) {
	if err := w.repo.ReleaseJob(ctx, w.workerID, job.ID); err != nil {
		w.logger.Error("failed to release abandoned job",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	w.metrics.processed(job.Queue, OutcomeReleased, 0)
	w.logger.Warn("job released for redelivery", slog.String("job_id", job.ID.String()))
}

func (w *Worker) track(id uuid.UUID, cancel context.CancelCauseFunc) {
	w.activeMu.Lock()
	w.active[id] = cancel
	w.activeMu.Unlock()
}

func (w *Worker) untrack(id uuid.UUID) {
	w.activeMu.Lock()
	delete(w.active, id)
	w.activeMu.Unlock()
}

func (w *Worker) abandonActive() {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	for id, cancel := range w.active {
		w.logger.Warn("cancelling active job", slog.String("job_id", id.String()))
		cancel(errAbandoned)
	}
}

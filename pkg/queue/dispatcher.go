package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Dispatcher runs one Worker per Registration and starts and stops them together.
type Dispatcher struct {
	workers         []*Worker
	shutdownTimeout time.Duration

	mu      sync.Mutex
	started bool
}

// NewDispatcher creates a worker for each registration with the shared options.
func NewDispatcher(repo WorkerRepository, regs []Registration, opts ...WorkerOption) (*Dispatcher, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if len(regs) == 0 {
		return nil, ErrNoRegistrations
	}

	options := &workerOptions{shutdownTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(options)
	}

	d := &Dispatcher{
		workers:         make([]*Worker, 0, len(regs)),
		shutdownTimeout: options.shutdownTimeout,
	}
	for _, reg := range regs {
		w, err := NewWorker(repo, reg, opts...)
		if err != nil {
			return nil, err
		}
		d.workers = append(d.workers, w)
	}

	return d, nil
}

// Workers returns the managed workers.
func (d *Dispatcher) Workers() []*Worker {
	return d.workers
}

// Start starts every worker. Workers started before a failure are stopped again.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrWorkerAlreadyStarted
	}

	for i, w := range d.workers {
		if err := w.Start(ctx); err != nil {
			for _, started := range d.workers[:i] {
				_ = started.Stop(ctx)
			}
			return err
		}
	}

	d.started = true
	return nil
}

// Stop stops all workers concurrently, sharing the grace period of ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrWorkerNotStarted
	}
	d.started = false

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, w := range d.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Stop(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Run starts the dispatcher and returns a function suitable for errgroup.
func (d *Dispatcher) Run(ctx context.Context) func() error {
	return func() error {
		if err := d.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
		defer cancel()
		return d.Stop(stopCtx)
	}
}

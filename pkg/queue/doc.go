// Package queue provides a broker-agnostic job dispatch layer: named durable
// queues, a producer API, discovery of worker modules and a worker runtime with
// retry, backoff and dead-letter routing.
//
// The package is organised around four main components:
//
//   - Registry   — owns the set of named queues and hands out QueueHandles
//   - Enqueuer   — submits jobs to a queue by name
//   - Discover   — scans a directory of *.worker.yaml manifests and binds handlers to queues
//   - Worker     — claims jobs of one registration and runs its Handler
//
// Components interact only through the repository interfaces in storage.go.
// MemoryStorage ships in this package; Redis and PostgreSQL drivers live in
// the redisstore and pgstore subpackages.
//
// # Delivery
//
// Delivery is at-least-once. A job is acknowledged only after its handler
// returns, and a claim is a lock with a deadline: a worker that dies leaves the
// job to be claimed again once the lock expires. Handlers must therefore be
// idempotent, or be wrapped with Idempotent.
//
// Within one queue jobs are claimed by descending priority and in enqueue order
// within a priority. With Concurrency > 1, or several processes consuming the
// same queue, completion order is not guaranteed.
//
// # Failure handling
//
// A handler error consumes one attempt. Until the attempt budget of the
// registration (or the job's own MaxAttempts) is spent, the job is retried after
// an exponential, jittered backoff. Then it is moved to the queue's dead-letter
// queue, named "<queue>.dead". A payload the handler cannot decode (ErrPoisonPayload)
// is dead-lettered immediately.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	registry, _ := queue.NewRegistry(storage)
//	_ = registry.RegisterDefaults()
//
//	regs, err := queue.Discover("./workers.d", registry)
//	if err != nil {
//		return err
//	}
//
//	dispatcher, err := queue.NewDispatcher(storage, regs)
//	if err != nil {
//		return err
//	}
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(dispatcher.Run(ctx))
//
//	enqueuer, _ := queue.NewEnqueuer(registry)
//	_, err = enqueuer.Enqueue(ctx, "student-queue", payload, queue.WithDedupKey("student:42"))
//
// # Configuration
//
// Config is loaded from the environment (QUEUE_BACKEND, QUEUE_POLL_INTERVAL,
// QUEUE_LOCK_TIMEOUT, QUEUE_SHUTDOWN_TIMEOUT, QUEUE_COMPLETED_RETENTION,
// WORKERS_DIR) and turned into worker options with Config.WorkerOptions.
package queue

package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrRegistryNil is returned when a nil queue registry is provided
	ErrRegistryNil = errors.New("queue registry cannot be nil")

	// ErrInvalidQueueName is returned for an empty queue name
	ErrInvalidQueueName = errors.New("queue name cannot be empty")

	// ErrQueueNotRegistered is a configuration error: the target queue was never registered.
	// It is reported to the caller and never retried.
	ErrQueueNotRegistered = errors.New("queue is not registered")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrPayloadMarshal is returned when payload marshaling fails
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrJobCreate is returned when job creation in storage fails
	ErrJobCreate = errors.New("failed to create job in storage")

	// ErrInvalidPriority is returned when priority is outside valid range
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrInvalidMaxAttempts is returned when a per-job attempt override is outside 1..MaxJobAttempts
	ErrInvalidMaxAttempts = errors.New("max attempts must be between 1 and 25")

	// ErrNoJobToClaim is returned by storage when no job is ready in the queue
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrJobNotFound is returned when a job ID is unknown to the storage
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotInFlight is returned when acknowledging a job that is no longer claimed,
	// typically because its lock expired and another worker took it over
	ErrJobNotInFlight = errors.New("job is not in flight")

	// ErrHandlerNil is returned when a registration has no handler
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrHandlerNotProvided is returned when a manifest names a handler missing from the catalog
	ErrHandlerNotProvided = errors.New("handler not provided by any worker module")

	// ErrHandlerAlreadyProvided is returned when two worker modules provide the same handler name
	ErrHandlerAlreadyProvided = errors.New("handler already provided")

	// ErrHandlerPanic wraps a recovered panic from a handler
	ErrHandlerPanic = errors.New("panic in handler")

	// ErrJobTimeout is the cancellation cause of a handler that exceeded its timeout
	ErrJobTimeout = errors.New("job execution timed out")

	// ErrPoisonPayload marks a payload that can never be processed (e.g. it does not
	// deserialize). Such jobs go straight to the dead-letter queue without consuming retries.
	ErrPoisonPayload = errors.New("poison payload")

	// ErrInvalidManifest is returned when a worker manifest cannot be used
	ErrInvalidManifest = errors.New("invalid worker manifest")

	// ErrInvalidRegistration is returned when a worker registration fails validation
	ErrInvalidRegistration = errors.New("invalid worker registration")

	// ErrNoRegistrations is returned when a dispatcher is built without workers
	ErrNoRegistrations = errors.New("no worker registrations")

	// ErrWorkerAlreadyStarted is returned when Start is called twice
	ErrWorkerAlreadyStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when Stop is called before Start
	ErrWorkerNotStarted = errors.New("worker not started")

	// ErrFailedToClaimJob is returned when fetching the next job fails
	ErrFailedToClaimJob = errors.New("failed to claim next job from storage")

	// ErrFailedToMoveToDLQ is returned when moving a job to the dead letter queue fails
	ErrFailedToMoveToDLQ = errors.New("failed to move job to dead letter queue")
)

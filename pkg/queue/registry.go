package queue

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultQueues are the per-entity queues of the institutional-management domain.
var DefaultQueues = []string{
	"batch-queue",
	"course-queue",
	"department-queue",
	"semester-queue",
	"teacher-queue",
	"answer-script-queue",
	"class-section-queue",
	"department-head-queue",
	"exam-queue",
	"exam-submission-queue",
	"exam-type-queue",
	"institution-queue",
	"question-queue",
	"student-queue",
	"enrollment-queue",
	"user-queue",
}

// Registry holds one handle per queue name for the lifetime of the process.
// It is safe for concurrent use.
type Registry struct {
	repo            EnqueuerRepository
	defaultPriority Priority
	metrics         *Metrics
	logger          *slog.Logger

	mu     sync.RWMutex
	queues map[string]*QueueHandle
}

// NewRegistry creates an empty registry whose handles persist jobs through repo.
func NewRegistry(repo EnqueuerRepository, opts ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &registryOptions{
		defaultPriority: PriorityDefault,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Registry{
		repo:            repo,
		defaultPriority: options.defaultPriority,
		metrics:         options.metrics,
		logger:          options.logger,
		queues:          make(map[string]*QueueHandle),
	}, nil
}

// GetOrCreate returns the handle for name, creating it on first use.
// Calling it again with the same name returns the same handle.
func (r *Registry) GetOrCreate(name string) (*QueueHandle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidQueueName
	}

	r.mu.RLock()
	h, ok := r.queues[name]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.queues[name]; ok {
		return h, nil
	}

	h = &QueueHandle{name: name, registry: r}
	r.queues[name] = h

	r.logger.Debug("queue registered", slog.String("queue", name))

	return h, nil
}

// RegisterDefaults eagerly creates every queue in DefaultQueues.
func (r *Registry) RegisterDefaults() error {
	for _, name := range DefaultQueues {
		if _, err := r.GetOrCreate(name); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the handle for an already registered queue.
func (r *Registry) Lookup(name string) (*QueueHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.queues[name]
	if !ok {
		return nil, ErrQueueNotRegistered
	}
	return h, nil
}

// Names returns all registered queue names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// QueueHandle is a thin, typed reference to one named queue.
type QueueHandle struct {
	name     string
	registry *Registry
}

// Name returns the queue name.
func (h *QueueHandle) Name() string {
	return h.name
}

// DeadLetterQueue returns the name of this queue's dead-letter queue.
func (h *QueueHandle) DeadLetterQueue() string {
	return DeadLetterQueueName(h.name)
}

// Enqueue durably stores payload as a new job on this queue and returns its ID.
func (h *QueueHandle) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	options := &enqueueOptions{priority: h.registry.defaultPriority}
	for _, opt := range opts {
		opt(options)
	}
	return h.registry.enqueue(ctx, h.name, payload, options)
}

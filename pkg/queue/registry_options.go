package queue

import "log/slog"

// RegistryOption is a functional option for configuring a Registry
type RegistryOption func(*registryOptions)

type registryOptions struct {
	defaultPriority Priority
	metrics         *Metrics
	logger          *slog.Logger
}

// WithDefaultPriority sets the priority used when a job does not specify one
func WithDefaultPriority(priority Priority) RegistryOption {
	return func(o *registryOptions) {
		if priority.Valid() {
			o.defaultPriority = priority
		}
	}
}

// WithRegistryMetrics records enqueue counters
func WithRegistryMetrics(m *Metrics) RegistryOption {
	return func(o *registryOptions) {
		o.metrics = m
	}
}

// WithRegistryLogger sets the logger for the registry
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

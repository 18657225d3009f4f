package queue

import "time"

// Config holds the configuration for the dispatch layer
type Config struct {
	Backend            string        `env:"QUEUE_BACKEND" envDefault:"redis"`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CompletedRetention time.Duration `env:"QUEUE_COMPLETED_RETENTION" envDefault:"0s"`
	WorkersDir         string        `env:"WORKERS_DIR" envDefault:"./workers.d"`
}

// WorkerOptions converts the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithPullInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithShutdownTimeout(c.ShutdownTimeout),
	}
}

package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broker owns the one Redis connection pool of the process. Every queue,
// worker and health probe borrows the same client from it.
//
// It is created once at startup, handed to components explicitly and closed
// once at shutdown.
type Broker struct {
	cfg Config

	mu     sync.Mutex
	client *redis.Client
	closed bool
}

// NewBroker returns a broker that connects on first use.
func NewBroker(cfg Config) *Broker {
	return &Broker{cfg: cfg}
}

// NewBrokerFromClient wraps an already connected client.
func NewBrokerFromClient(client *redis.Client) *Broker {
	return &Broker{client: client}
}

// Client returns the shared client, connecting on the first call.
// Concurrent and repeated calls return the same client. A failed connect is
// not cached, so a later call retries.
func (b *Broker) Client(ctx context.Context) (*redis.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}
	if b.client != nil {
		return b.client, nil
	}

	client, err := Connect(ctx, b.cfg)
	if err != nil {
		return nil, err
	}
	b.client = client
	return client, nil
}

// Close closes the shared client. Calling it more than once is a no-op.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// Healthcheck pings the shared client without connecting it.
func (b *Broker) Healthcheck(ctx context.Context) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	if client == nil {
		return ErrBrokerNotConnected
	}
	return Healthcheck(client)(ctx)
}

package queue

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Deps are the process-wide collaborators handed to worker modules when
// their handlers are built.
type Deps struct {
	Logger *slog.Logger
	Guard  IdempotencyGuard
}

// Provider builds a handler once the process dependencies are known.
type Provider func(deps Deps) (Handler, error)

// Catalog is the plugin table of worker modules: handler name -> provider.
// Worker packages add themselves from init() so that the dispatch core never
// references them by concrete type.
type Catalog struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// DefaultCatalog is the catalog that Provide writes to and Discover reads by default.
var DefaultCatalog = NewCatalog()

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{providers: make(map[string]Provider)}
}

// Provide registers a handler provider under name.
func (c *Catalog) Provide(name string, p Provider) error {
	if name == "" {
		return fmt.Errorf("%w: empty handler name", ErrInvalidRegistration)
	}
	if p == nil {
		return ErrHandlerNil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyProvided, name)
	}
	c.providers[name] = p
	return nil
}

// ProvideHandler registers a ready-made handler under name.
func (c *Catalog) ProvideHandler(name string, h Handler) error {
	if h == nil {
		return ErrHandlerNil
	}
	return c.Provide(name, func(Deps) (Handler, error) { return h, nil })
}

// Build instantiates the handler registered under name.
func (c *Catalog) Build(name string, deps Deps) (Handler, error) {
	c.mu.RLock()
	p, ok := c.providers[name]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotProvided, name)
	}

	h, err := p(deps)
	if err != nil {
		return nil, fmt.Errorf("build handler %s: %w", name, err)
	}
	if h == nil {
		return nil, fmt.Errorf("build handler %s: %w", name, ErrHandlerNil)
	}
	return h, nil
}

// Names returns the provided handler names in lexical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provide registers p in DefaultCatalog and panics on conflict.
// Intended for init() functions of worker packages.
func Provide(name string, p Provider) {
	if err := DefaultCatalog.Provide(name, p); err != nil {
		panic(err)
	}
}

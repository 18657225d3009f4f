package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ManifestSuffix marks files picked up by Discover.
	ManifestSuffix = ".worker.yaml"

	// DiscoveryIndexFile is the discovery index kept next to the manifests.
	// It never describes a worker and is excluded from the scan.
	DiscoveryIndexFile = "_discovery" + ManifestSuffix
)

// Manifest is the on-disk worker module contract.
//
//	queue: student-queue
//	handler: student.sync
//	concurrency: 2
//	timeout: 30s
//	retry:
//	  max_attempts: 5
//	  backoff_base: 2s
//	  backoff_max: 2m
type Manifest struct {
	Queue       string        `yaml:"queue"`
	Handler     string        `yaml:"handler"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Retry       RetryPolicy   `yaml:"retry"`
	RateLimit   float64       `yaml:"rate_limit"`
	RateBurst   int           `yaml:"rate_burst"`
	Disabled    bool          `yaml:"disabled"`
}

// DiscoverOption is a functional option for Discover
type DiscoverOption func(*discoverOptions)

type discoverOptions struct {
	catalog *Catalog
	deps    Deps
	logger  *slog.Logger
}

// WithCatalog sets the catalog handler names are resolved against (default: DefaultCatalog)
func WithCatalog(c *Catalog) DiscoverOption {
	return func(o *discoverOptions) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithDeps sets the dependencies passed to handler providers
func WithDeps(deps Deps) DiscoverOption {
	return func(o *discoverOptions) {
		o.deps = deps
	}
}

// WithDiscoveryLogger sets the logger for discovery warnings
func WithDiscoveryLogger(logger *slog.Logger) DiscoverOption {
	return func(o *discoverOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Discover scans dir for worker manifests, resolves each handler in the catalog
// and binds it to its queue, creating the queue in registry if needed.
//
// A manifest that cannot be parsed, is incomplete, or names an unknown handler
// is skipped with a warning; the remaining manifests still register. Only an
// unreadable directory is reported as an error.
func Discover(dir string, registry *Registry, opts ...DiscoverOption) ([]Registration, error) {
	if registry == nil {
		return nil, ErrRegistryNil
	}

	options := &discoverOptions{
		catalog: DefaultCatalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.deps.Logger == nil {
		options.deps.Logger = options.logger
	}

	// os.ReadDir returns entries sorted by file name.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("discover workers in %s: %w", dir, err)
	}

	var regs []Registration
	for _, entry := range entries {
		if !isManifest(entry) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		reg, err := loadRegistration(path, registry, options)
		if err != nil {
			options.logger.Warn("skipping worker module",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		if reg == nil {
			options.logger.Info("worker module disabled", slog.String("path", path))
			continue
		}

		options.logger.Info("worker registered",
			slog.String("worker", reg.Name),
			slog.String("queue", reg.Queue),
			slog.String("handler", reg.HandlerName),
			slog.Int("concurrency", reg.Concurrency),
			slog.Int("max_attempts", reg.Retry.MaxAttempts))

		regs = append(regs, *reg)
	}

	return regs, nil
}

func isManifest(entry os.DirEntry) bool {
	name := entry.Name()
	if !entry.Type().IsRegular() {
		return false
	}
	if name == DiscoveryIndexFile || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ManifestSuffix)
}

// loadRegistration returns nil, nil for a disabled manifest.
func loadRegistration(path string, registry *Registry, options *discoverOptions) (*Registration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Join(ErrInvalidManifest, err)
	}
	if m.Disabled {
		return nil, nil
	}
	if m.Queue == "" {
		return nil, fmt.Errorf("%w: missing queue", ErrInvalidManifest)
	}
	if m.Handler == "" {
		return nil, fmt.Errorf("%w: missing handler", ErrInvalidManifest)
	}

	handler, err := options.catalog.Build(m.Handler, options.deps)
	if err != nil {
		return nil, err
	}

	if _, err := registry.GetOrCreate(m.Queue); err != nil {
		return nil, err
	}

	reg, err := Registration{
		Name:        strings.TrimSuffix(filepath.Base(path), ManifestSuffix),
		Queue:       m.Queue,
		HandlerName: m.Handler,
		Handler:     handler,
		Concurrency: m.Concurrency,
		Retry:       m.Retry,
		Timeout:     m.Timeout,
		RateLimit:   m.RateLimit,
		RateBurst:   m.RateBurst,
	}.Validate()
	if err != nil {
		return nil, err
	}

	return &reg, nil
}

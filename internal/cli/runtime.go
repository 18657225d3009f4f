package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/campusjobs/pkg/config"
	"github.com/dmitrymomot/campusjobs/pkg/httpserver"
	"github.com/dmitrymomot/campusjobs/pkg/logger"
	"github.com/dmitrymomot/campusjobs/pkg/mongo"
	"github.com/dmitrymomot/campusjobs/pkg/pg"
	"github.com/dmitrymomot/campusjobs/pkg/queue"
	"github.com/dmitrymomot/campusjobs/pkg/queue/mongoarchive"
	"github.com/dmitrymomot/campusjobs/pkg/queue/pgstore"
	"github.com/dmitrymomot/campusjobs/pkg/queue/redisstore"
	"github.com/dmitrymomot/campusjobs/pkg/redis"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// runtime is everything a command needs once configuration is resolved.
// Components are created once here and closed once in Close.
type runtime struct {
	app      config.App
	queueCfg queue.Config
	logger   *slog.Logger
	gatherer *prometheus.Registry
	metrics  *queue.Metrics
	storage  queue.Storage
	guard    queue.IdempotencyGuard
	registry *queue.Registry
	archive  *mongoarchive.Archive
	checks   []httpserver.Check
	closers  []func() error
}

func newLogger(app config.App, out io.Writer) (*slog.Logger, error) {
	opts := []logger.Option{
		logger.WithEnvironment(app.Env, app.Name),
		logger.WithOutput(out),
		logger.WithContextExtractors(queue.LogJobContext),
	}
	if app.LogLevel != "" {
		lvl, err := logger.ParseLevel(app.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, logger.WithLevel(lvl))
	}
	switch f := logger.Format(app.LogFormat); f {
	case "", logger.FormatJSON, logger.FormatText:
		opts = append(opts, logger.WithFormat(f))
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", app.LogFormat)
	}
	return logger.New(opts...), nil
}

// bootstrap loads configuration, connects the selected backend and registers
// the default queues. The caller must Close the runtime.
func bootstrap(ctx context.Context, f *rootFlags, logOut io.Writer) (rt *runtime, err error) {
	rt = &runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	if err := config.Load(&rt.app); err != nil {
		return nil, err
	}
	if err := config.Load(&rt.queueCfg); err != nil {
		return nil, err
	}
	if f.backend != "" {
		rt.queueCfg.Backend = f.backend
	}
	if f.workersDir != "" {
		rt.queueCfg.WorkersDir = f.workersDir
	}

	if rt.logger, err = newLogger(rt.app, logOut); err != nil {
		return nil, err
	}

	rt.gatherer = prometheus.NewRegistry()
	rt.gatherer.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if rt.metrics, err = queue.NewMetrics(rt.gatherer); err != nil {
		return nil, err
	}

	switch rt.queueCfg.Backend {
	case BackendRedis:
		err = rt.openRedis(ctx)
	case BackendPostgres:
		err = rt.openPostgres(ctx)
	case BackendMemory:
		rt.openMemory()
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownBackend, rt.queueCfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := rt.openArchive(ctx); err != nil {
		return nil, err
	}

	rt.registry, err = queue.NewRegistry(rt.storage,
		queue.WithRegistryMetrics(rt.metrics),
		queue.WithRegistryLogger(rt.logger))
	if err != nil {
		return nil, err
	}
	if err := rt.registry.RegisterDefaults(); err != nil {
		return nil, err
	}

	rt.logger.DebugContext(ctx, "runtime ready",
		slog.String("backend", rt.queueCfg.Backend),
		slog.Bool("archive", rt.archive != nil))
	return rt, nil
}

func (rt *runtime) openRedis(ctx context.Context) error {
	var cfg redis.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	broker := redis.NewBroker(cfg)
	rt.closers = append(rt.closers, broker.Close)

	client, err := broker.Client(ctx)
	if err != nil {
		return err
	}

	rt.storage = redisstore.New(client,
		redisstore.WithKeyPrefix(cfg.KeyPrefix),
		redisstore.WithCompletedRetention(rt.queueCfg.CompletedRetention),
		redisstore.WithLogger(rt.logger))
	rt.guard = redisstore.NewGuard(client, cfg.KeyPrefix, 0)
	rt.checks = append(rt.checks, httpserver.Check{Name: "redis", Probe: broker.Healthcheck})
	return nil
}

func (rt *runtime) openPostgres(ctx context.Context) error {
	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, func() error {
		pool.Close()
		return nil
	})

	store := pgstore.New(pool,
		pgstore.WithCompletedRetention(rt.queueCfg.CompletedRetention),
		pgstore.WithLogger(rt.logger))
	if err := store.Migrate(ctx, cfg); err != nil {
		return err
	}

	rt.storage = store
	// TODO: back the guard with a Postgres table so it survives restarts and is shared across processes.
	rt.guard = queue.NewMemoryGuard()
	rt.checks = append(rt.checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})
	return nil
}

func (rt *runtime) openMemory() {
	storage := queue.NewMemoryStorage()
	rt.closers = append(rt.closers, storage.Close)
	rt.storage = storage
	rt.guard = queue.NewMemoryGuard()
}

// openArchive connects the Mongo dead-letter archive when MONGODB_URL is set.
func (rt *runtime) openArchive(ctx context.Context) error {
	var cfg mongo.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	if cfg.ConnectionURL == "" {
		return nil
	}

	client, err := mongo.New(ctx, cfg)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, func() error {
		return client.Disconnect(context.Background())
	})

	archive := mongoarchive.New(client.Database(cfg.Database), mongoarchive.WithLogger(rt.logger))
	if err := archive.EnsureIndexes(ctx); err != nil {
		return err
	}

	rt.archive = archive
	rt.checks = append(rt.checks, httpserver.Check{Name: "mongodb", Probe: mongo.Healthcheck(client)})
	return nil
}

// workerOptions are the options shared by every worker of the dispatcher.
func (rt *runtime) workerOptions() []queue.WorkerOption {
	opts := append(rt.queueCfg.WorkerOptions(),
		queue.WithWorkerLogger(rt.logger),
		queue.WithWorkerMetrics(rt.metrics))
	if rt.archive != nil {
		opts = append(opts, queue.WithDeadLetterHook(rt.archive.Hook()))
	}
	return opts
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

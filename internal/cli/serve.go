package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/campusjobs/api"
	"github.com/dmitrymomot/campusjobs/pkg/config"
	"github.com/dmitrymomot/campusjobs/pkg/httpserver"
	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

func newServeCmd(f *rootFlags) *cobra.Command {
	var noHTTP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the discovered workers and the operator HTTP server",
		Long: `Discover worker manifests, start one consumption loop per worker and serve
probes, metrics and queue inspection over HTTP until SIGINT or SIGTERM.

On shutdown the workers stop claiming, in-flight jobs get QUEUE_SHUTDOWN_TIMEOUT
to finish and anything still running is released back to its queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withRuntime(cmd, f, func(ctx context.Context, rt *runtime) error {
				return serve(ctx, rt, !noHTTP)
			})
		},
	}

	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "run workers only, without the operator HTTP server")
	return cmd
}

func serve(ctx context.Context, rt *runtime, withHTTP bool) error {
	regs, err := queue.Discover(rt.queueCfg.WorkersDir, rt.registry,
		queue.WithDeps(queue.Deps{Logger: rt.logger, Guard: rt.guard}),
		queue.WithDiscoveryLogger(rt.logger))
	if err != nil {
		return err
	}
	if len(regs) == 0 {
		return errors.Join(ErrNoWorkers, queue.ErrNoRegistrations)
	}

	dispatcher, err := queue.NewDispatcher(rt.storage, regs, rt.workerOptions()...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(dispatcher.Run(ctx))

	if withHTTP {
		var httpCfg httpserver.Config
		if err := config.Load(&httpCfg); err != nil {
			return err
		}

		enqueuer, err := queue.NewEnqueuer(rt.registry)
		if err != nil {
			return err
		}

		router := api.Router(api.RouterOptions{
			Registry:     rt.registry,
			Inspector:    rt.storage,
			Enqueuer:     enqueuer,
			Checks:       rt.checks,
			ProbeTimeout: httpCfg.ProbeTimeout,
			Gatherer:     rt.gatherer,
			Logger:       rt.logger,
		})
		srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(rt.logger))
		g.Go(srv.Run(ctx, router))
	}

	rt.logger.InfoContext(ctx, "campusjobs started",
		slog.String("backend", rt.queueCfg.Backend),
		slog.Int("workers", len(regs)),
		slog.Bool("http", withHTTP))

	if err := g.Wait(); err != nil {
		return err
	}
	rt.logger.Info("campusjobs stopped")
	return nil
}

// Package cli implements the campusjobs command line: the worker process, a
// producer for ad-hoc jobs and operator views over queues and dead letters.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/campusjobs/pkg/config"

	// Entity sync handlers register themselves in queue.DefaultCatalog.
	_ "github.com/dmitrymomot/campusjobs/workers"
)

type rootFlags struct {
	envFiles   []string
	backend    string
	workersDir string
}

// NewRootCommand builds the command tree. Each call returns a fresh tree, so
// tests can execute commands independently.
func NewRootCommand() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:   "campusjobs",
		Short: "Asynchronous job dispatch for the institutional-management app",
		Long: `campusjobs runs the per-entity queue workers and offers operator tooling
for the job dispatch layer.

Configuration comes from the environment (optionally a .env file):
  QUEUE_BACKEND   redis (default), postgres or memory
  REDIS_URL       broker for the redis backend
  PG_CONN_URL     database for the postgres backend
  MONGODB_URL     optional dead-letter archive
  WORKERS_DIR     worker manifests, default ./workers.d`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(f.envFiles) == 0 {
				return nil
			}
			config.ResetCache()
			return config.LoadEnv(f.envFiles...)
		},
	}

	root.PersistentFlags().StringSliceVar(&f.envFiles, "env-file", nil, "load environment from these files before reading configuration")
	root.PersistentFlags().StringVar(&f.backend, "backend", "", "queue backend, overrides QUEUE_BACKEND")
	root.PersistentFlags().StringVar(&f.workersDir, "workers-dir", "", "worker manifest directory, overrides WORKERS_DIR")

	root.AddCommand(
		newServeCmd(f),
		newEnqueueCmd(f),
		newQueuesCmd(f),
		newDLQCmd(f),
		newWorkersCmd(f),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// withRuntime bootstraps the runtime for the duration of fn.
func withRuntime(cmd *cobra.Command, f *rootFlags, fn func(ctx context.Context, rt *runtime) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := bootstrap(ctx, f, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, rt)
}

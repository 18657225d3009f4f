package cli

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/campusjobs/pkg/config"
	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

func newWorkersCmd(f *rootFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Validate worker manifests and list what serve would run",
		Long: `Run discovery against the worker directory without touching the broker.
Manifests that would be skipped are reported as warnings on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var app config.App
			if err := config.Load(&app); err != nil {
				return err
			}
			var queueCfg queue.Config
			if err := config.Load(&queueCfg); err != nil {
				return err
			}
			if f.workersDir != "" {
				queueCfg.WorkersDir = f.workersDir
			}

			log, err := newLogger(app, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			storage := queue.NewMemoryStorage()
			defer func() { _ = storage.Close() }()
			registry, err := queue.NewRegistry(storage, queue.WithRegistryLogger(log))
			if err != nil {
				return err
			}

			regs, err := queue.Discover(queueCfg.WorkersDir, registry,
				queue.WithDeps(queue.Deps{Logger: log}),
				queue.WithDiscoveryLogger(log))
			if err != nil {
				return err
			}
			if len(regs) == 0 {
				return fmt.Errorf("%w in %s", ErrNoWorkers, queueCfg.WorkersDir)
			}

			return render(cmd.OutOrStdout(), output, manifestsOf(regs), func(table *tablewriter.Table) error {
				table.Header("Worker", "Queue", "Handler", "Concurrency", "Max attempts", "Timeout", "Rate limit")
				for _, r := range regs {
					rate := "-"
					if r.RateLimit > 0 {
						rate = fmt.Sprintf("%g/s burst %d", r.RateLimit, r.RateBurst)
					}
					if err := table.Append(r.Name, r.Queue, r.HandlerName, fmt.Sprint(r.Concurrency),
						fmt.Sprint(r.Retry.MaxAttempts), r.Timeout.String(), rate); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format (table, json)")
	return cmd
}

type workerView struct {
	Name        string            `json:"name"`
	Queue       string            `json:"queue"`
	Handler     string            `json:"handler"`
	Concurrency int               `json:"concurrency"`
	Retry       queue.RetryPolicy `json:"retry"`
	Timeout     string            `json:"timeout"`
	RateLimit   float64           `json:"rate_limit,omitempty"`
}

func manifestsOf(regs []queue.Registration) []workerView {
	out := make([]workerView, 0, len(regs))
	for _, r := range regs {
		out = append(out, workerView{
			Name:        r.Name,
			Queue:       r.Queue,
			Handler:     r.HandlerName,
			Concurrency: r.Concurrency,
			Retry:       r.Retry,
			Timeout:     r.Timeout.String(),
			RateLimit:   r.RateLimit,
		})
	}
	return out
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func newQueuesCmd(f *rootFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "queues",
		Short: "Show job counts for every registered queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, f, func(ctx context.Context, rt *runtime) error {
				names := rt.registry.Names()
				stats := make([]*queue.Stats, 0, len(names))
				for _, name := range names {
					s, err := rt.storage.Stats(ctx, name)
					if err != nil {
						return err
					}
					stats = append(stats, s)
				}
				return render(cmd.OutOrStdout(), output, stats, func(table *tablewriter.Table) error {
					table.Header("Queue", "Pending", "Scheduled", "In flight", "Completed", "Dead")
					for _, s := range stats {
						if err := table.Append(s.Queue,
							fmt.Sprint(s.Pending), fmt.Sprint(s.Scheduled), fmt.Sprint(s.InFlight),
							fmt.Sprint(s.Completed), fmt.Sprint(s.DeadLettered)); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format (table, json)")
	return cmd
}

// render writes v as indented JSON or fills a table through fill.
func render(w io.Writer, output string, v any, fill func(*tablewriter.Table) error) error {
	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputTable:
		table := tablewriter.NewWriter(w)
		if err := fill(table); err != nil {
			return err
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
}

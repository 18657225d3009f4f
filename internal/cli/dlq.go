package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

// maxReasonWidth truncates failure reasons in table output.
const maxReasonWidth = 60

func newDLQCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect dead-lettered jobs",
		Long: `Dead-letter inspection. Jobs land in "<queue>.dead" once their retries are
exhausted or their payload cannot be decoded. There is no automated replay.

Examples:
  campusjobs dlq list student-queue
  campusjobs dlq list exam-queue --limit 5 -o json
  campusjobs dlq list exam-queue --archive`,
	}
	cmd.AddCommand(newDLQListCmd(f))
	return cmd
}

func newDLQListCmd(f *rootFlags) *cobra.Command {
	var (
		limit   int
		output  string
		archive bool
	)

	cmd := &cobra.Command{
		Use:   "list <queue>",
		Short: "List the newest dead letters of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, f, func(ctx context.Context, rt *runtime) error {
				handle, err := rt.registry.Lookup(args[0])
				if err != nil {
					return err
				}

				var letters []*queue.DeadLetter
				if archive {
					if rt.archive == nil {
						return fmt.Errorf("dead-letter archive is not configured: set MONGODB_URL")
					}
					letters, err = rt.archive.List(ctx, handle.Name(), limit)
				} else {
					letters, err = rt.storage.ListDeadLetters(ctx, handle.Name(), limit)
				}
				if err != nil {
					return err
				}

				if len(letters) == 0 && output == outputTable {
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "no dead letters in %s\n", handle.DeadLetterQueue())
					return err
				}

				return render(cmd.OutOrStdout(), output, letters, func(table *tablewriter.Table) error {
					table.Header("Job", "Failed at", "Attempts", "Reason", "Payload")
					for _, dl := range letters {
						if err := table.Append(dl.JobID.String(), dl.FailedAt.Format(time.RFC3339),
							fmt.Sprint(dl.Attempts), truncate(dl.Reason, maxReasonWidth), string(dl.Payload)); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries, newest first; 0 lists all")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format (table, json)")
	cmd.Flags().BoolVar(&archive, "archive", false, "read from the MongoDB archive instead of the broker")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

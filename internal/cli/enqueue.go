package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

func newEnqueueCmd(f *rootFlags) *cobra.Command {
	var (
		delay       time.Duration
		priority    int
		dedupKey    string
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:   "enqueue <queue> <payload>",
		Short: "Enqueue one job",
		Long: `Persist one job on a registered queue and print its ID.

Examples:
  campusjobs enqueue student-queue '{"studentId":"S1","action":"enrolled"}'
  campusjobs enqueue exam-queue '{"entity_id":"E7","action":"published"}' --delay 10m
  campusjobs enqueue user-queue '{"userId":"U1","action":"created"}' --dedup-key user:U1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := json.RawMessage(args[1])
			if !json.Valid(payload) {
				return fmt.Errorf("%w: %s", ErrInvalidPayload, args[1])
			}

			opts := []queue.EnqueueOption{queue.WithDelay(delay)}
			if cmd.Flags().Changed("priority") {
				if priority < int(queue.PriorityMin) || priority > int(queue.PriorityMax) {
					return queue.ErrInvalidPriority
				}
				opts = append(opts, queue.WithPriority(queue.Priority(priority)))
			}
			if dedupKey != "" {
				opts = append(opts, queue.WithDedupKey(dedupKey))
			}
			if cmd.Flags().Changed("max-attempts") {
				if !queue.ValidMaxAttempts(maxAttempts) {
					return queue.ErrInvalidMaxAttempts
				}
				opts = append(opts, queue.WithMaxAttempts(maxAttempts))
			}

			return withRuntime(cmd, f, func(ctx context.Context, rt *runtime) error {
				enqueuer, err := queue.NewEnqueuer(rt.registry)
				if err != nil {
					return err
				}
				id, err := enqueuer.Enqueue(ctx, args[0], payload, opts...)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", 0, "earliest delivery, relative to now")
	cmd.Flags().IntVar(&priority, "priority", int(queue.PriorityDefault), "0-100, higher is claimed first")
	cmd.Flags().StringVar(&dedupKey, "dedup-key", "", "collapse with an unfinished job holding the same key")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "override the worker's retry policy (1-25)")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/visitor-enrich/internal/queue"
	"github.com/sells-group/visitor-enrich/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and requeue dead-lettered jobs",
	Long:  "Commands for the postgres job queue's dead letters. With the amqp driver, dead letters sit in the <queue>.dlq queue on the broker.",
}

// -- dlq list --

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		src, closeFn, err := initDeadLetters(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := src.DeadLetters(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No dead-lettered jobs.")
			return nil
		}

		formatDeadLetters(os.Stdout, entries)
		return nil
	},
}

// -- dlq requeue --

var dlqRequeueCmd = &cobra.Command{
	Use:   "requeue <job-id>",
	Short: "Move a dead-lettered job back to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		src, closeFn, err := initDeadLetters(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		force, _ := cmd.Flags().GetBool("force")
		if err := src.Requeue(ctx, args[0], force); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "requeued %s\n", args[0])
		return nil
	},
}

// initDeadLetters opens the postgres queue. Only that transport keeps dead
// letters where this process can list them.
func initDeadLetters(ctx context.Context) (*queue.PostgresSource, func(), error) {
	if cfg.Queue.Driver != "postgres" {
		return nil, nil, eris.Errorf("dlq commands need queue.driver postgres, got %q", cfg.Queue.Driver)
	}
	if err := cfg.Validate("enqueue"); err != nil {
		return nil, nil, err
	}

	gw, pool, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := gw.Migrate(ctx); err != nil {
		_ = gw.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}
	return queue.NewPostgresSource(pool, postgresQueueConfig()), func() { _ = gw.Close() }, nil
}

func formatDeadLetters(out io.Writer, entries []resilience.DLQEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tVISITOR\tTYPE\tATTEMPTS\tREQUEUE\tFAILED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-------\t----\t--------\t-------\t------\t-----")

	for _, e := range entries {
		msg := e.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		requeue := "yes"
		if e.ErrorType == resilience.ErrorTypePermanent {
			requeue = "--force"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			e.ID,
			e.Job.VisitorID,
			e.ErrorType,
			e.Attempts, e.MaxAttempts,
			requeue,
			e.LastFailedAt.Format("2006-01-02 15:04"),
			msg,
		)
	}
	_ = w.Flush()
}

func init() {
	dlqListCmd.Flags().Int("limit", 50, "maximum entries to list")
	dlqRequeueCmd.Flags().Bool("force", false, "requeue even permanently failed jobs")

	dlqCmd.AddCommand(dlqListCmd, dlqRequeueCmd)
	rootCmd.AddCommand(dlqCmd)
}

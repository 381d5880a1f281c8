package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/store"
)

var (
	enqueueIP        string
	enqueueUserAgent string
	enqueueClientID  string
	enqueueUserID    string
	enqueuePageURL   string
	enqueueSessionID string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [visitor-id]",
	Short: "Publish an enrichment job",
	Long: "Publishes an enrichment job for a stored visitor. Without a visitor id, " +
		"records a new visitor from --ip and --client-id first, as the tracking endpoint does.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("enqueue"); err != nil {
			return err
		}
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		gw, pool, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer gw.Close() //nolint:errcheck
		if err := gw.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		var visitorID string
		if len(args) == 1 {
			visitorID = args[0]
		}
		visitor, err := resolveVisitor(ctx, gw, visitorID)
		if err != nil {
			return err
		}

		pub, release, err := initPublisher(ctx, pool)
		if err != nil {
			return err
		}
		defer release()

		job := jobForVisitor(visitor, enqueueUserID)
		if err := pub.Publish(ctx, job); err != nil {
			return err
		}

		zap.L().Info("job enqueued",
			zap.String("job_id", job.ID),
			zap.String("visitor_id", job.VisitorID),
			zap.String("queue", cfg.Queue.Name),
		)
		_, _ = fmt.Fprintln(os.Stdout, job.ID)
		return nil
	},
}

// resolveVisitor loads the visitor with id, or records a new one from the
// command's flags when id is empty.
func resolveVisitor(ctx context.Context, gw store.Gateway, id string) (*model.Visitor, error) {
	if id != "" {
		return gw.GetVisitor(ctx, id)
	}
	if enqueueIP == "" || enqueueClientID == "" {
		return nil, eris.New("enqueue: --ip and --client-id are required without a visitor id")
	}

	v := &model.Visitor{
		IPAddress: enqueueIP,
		UserAgent: enqueueUserAgent,
		PageURL:   enqueuePageURL,
		SessionID: enqueueSessionID,
		ClientID:  enqueueClientID,
	}
	if err := gw.CreateVisitor(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// jobForVisitor builds the job the tracking endpoint would emit for v.
func jobForVisitor(v *model.Visitor, userID string) model.EnrichmentJob {
	return model.EnrichmentJob{
		ID:        uuid.New().String(),
		VisitorID: v.ID,
		IPAddress: v.IPAddress,
		UserAgent: v.UserAgent,
		ClientID:  v.ClientID,
		UserID:    userID,
	}
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueIP, "ip", "", "visitor IP address for a new visitor")
	enqueueCmd.Flags().StringVar(&enqueueUserAgent, "user-agent", "", "visitor user agent for a new visitor")
	enqueueCmd.Flags().StringVar(&enqueueClientID, "client-id", "", "owning client for a new visitor")
	enqueueCmd.Flags().StringVar(&enqueuePageURL, "page-url", "", "page visited")
	enqueueCmd.Flags().StringVar(&enqueueSessionID, "session-id", "", "tracking session id")
	enqueueCmd.Flags().StringVar(&enqueueUserID, "user-id", "", "user who owns the resulting lead")
	rootCmd.AddCommand(enqueueCmd)
}

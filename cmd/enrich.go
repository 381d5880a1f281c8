package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sells-group/visitor-enrich/internal/model"
)

var (
	enrichIP        string
	enrichUserAgent string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <visitor-id>",
	Short: "Enrich a single visitor inline",
	Long:  "Runs one enrichment job for a stored visitor without the queue and prints the outcome as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		job := model.EnrichmentJob{
			ID:        uuid.New().String(),
			VisitorID: args[0],
			IPAddress: enrichIP,
			UserAgent: enrichUserAgent,
			Attempt:   1,
		}

		report, err := env.Worker.Process(ctx, job)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichIP, "ip", "", "override the visitor's IP address")
	enrichCmd.Flags().StringVar(&enrichUserAgent, "user-agent", "", "override the visitor's user agent")
	rootCmd.AddCommand(enrichCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "visitor-enrich",
	Short: "Turn anonymous website visits into companies and scored leads",
	Long:  `visitor-enrich consumes one job per website visit. Each job resolves the
visitor's IP to a company (enrich.so, ipdata, ip-api, then ipinfo, stopping
at the first match and deepening it through Clearbit), queries Clearbit,
Apollo and Hunter concurrently for contacts at that company, merges their
answers first-writer-wins, and stores a lead scored 0-100 when an email or
company name was found. The visitor is then marked enriched.

Run "work" for the queue consumer, "enrich" to process one visitor inline,
"enqueue" to publish a job, "migrate" to apply the schema, and "dlq" to
inspect failed jobs. Configuration comes from config.yaml, a .env file and
ENRICH_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

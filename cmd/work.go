package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/visitor-enrich/internal/monitoring"
	"github.com/sells-group/visitor-enrich/internal/worker"
)

const shutdownTimeout = 15 * time.Second

var (
	workPort        int
	workConcurrency int
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Consume enrichment jobs from the queue",
	Long:  "Runs the worker pool against the configured queue and serves /health, /ready, and /metrics until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if workPort > 0 {
			cfg.Server.Port = workPort
		}
		if workConcurrency > 0 {
			cfg.Worker.Concurrency = workConcurrency
		}
		if err := cfg.Validate("work"); err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		env, err := initEnv(ctx, reg)
		if err != nil {
			return err
		}
		defer env.Close()

		jq, err := initSource(ctx, env.Pool)
		if err != nil {
			return err
		}
		defer jq.Close()

		g, gctx := errgroup.WithContext(ctx)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newOpsRouter(env.Store.Ping, reg, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			zap.L().Info("starting ops server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "ops server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			zap.L().Info("shutting down ops server")
			return srv.Shutdown(sctx)
		})

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Metrics, jq.Dead),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})

		pool := worker.NewPool(env.Worker, jq.Source, cfg.Worker.Concurrency)
		g.Go(func() error {
			return pool.Run(gctx)
		})

		return g.Wait()
	},
}

func init() {
	workCmd.Flags().IntVar(&workPort, "port", 0, "ops server port (default from config)")
	workCmd.Flags().IntVar(&workConcurrency, "concurrency", 0, "worker goroutines (default from config)")
	rootCmd.AddCommand(workCmd)
}

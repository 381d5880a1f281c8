package worker

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/visitor-enrich/internal/queue"
	"github.com/sells-group/visitor-enrich/internal/resilience"
)

const (
	settleTimeout = 10 * time.Second
	// maxSourceErrors is how many consecutive Next failures a loop tolerates.
	maxSourceErrors = 5
)

// Pool runs a fixed number of workers against a job source.
type Pool struct {
	worker      *Worker
	source      queue.Source
	concurrency int
	backoff     resilience.RetryConfig
}

// NewPool creates a Pool. Concurrency below one is treated as one.
func NewPool(w *Worker, src queue.Source, concurrency int) *Pool {
	return &Pool{
		worker:      w,
		source:      src,
		concurrency: max(concurrency, 1),
		backoff: resilience.RetryConfig{
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.25,
		},
	}
}

// Run consumes jobs until ctx is cancelled or the source fails for good.
// Jobs in flight are settled before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	zap.L().Info("worker: pool starting", zap.Int("concurrency", p.concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.concurrency {
		g.Go(func() error {
			return p.loop(gctx, i)
		})
	}
	err := g.Wait()

	zap.L().Info("worker: pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, id int) error {
	log := zap.L().With(zap.Int("worker", id))
	sourceErrors := 0

	for {
		d, err := p.source.Next(ctx)
		if ctx.Err() != nil {
			if d != nil {
				p.settle(ctx, d, ctx.Err())
			}
			return nil
		}
		if err != nil {
			sourceErrors++
			if sourceErrors >= maxSourceErrors {
				return eris.Wrap(err, "worker: job source failed")
			}
			log.Warn("worker: fetch job failed", zap.Int("consecutive", sourceErrors), zap.Error(err))
			if !sleep(ctx, resilience.Backoff(p.backoff, sourceErrors-1)) {
				return nil
			}
			continue
		}
		sourceErrors = 0

		_, perr := p.worker.Process(ctx, d.Job)
		p.settle(ctx, d, perr)
	}
}

// settle acks or fails d. It outlives ctx so that shutdown does not strand
// a claimed job.
func (p *Pool) settle(ctx context.Context, d *queue.Delivery, cause error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	log := zap.L().With(zap.String("job_id", d.Job.ID), zap.String("visitor_id", d.Job.VisitorID))
	if cause == nil {
		if err := d.Ack(sctx); err != nil {
			log.Error("worker: ack failed", zap.Error(err))
		}
		return
	}
	log.Warn("worker: job failed",
		zap.String("error_type", resilience.ClassifyError(cause)),
		zap.Error(cause),
	)
	if err := d.Fail(sctx, cause); err != nil {
		log.Error("worker: fail settlement failed", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// MetricsSnapshot holds the worker's activity since the previous snapshot.
type MetricsSnapshot struct {
	JobsFinished int     `json:"jobs_finished"`
	JobsFailed   int     `json:"jobs_failed"`
	FailRate     float64 `json:"fail_rate"`
	LeadsCreated int     `json:"leads_created"`

	// DLQDepth is -1 when the transport cannot count dead letters.
	DLQDepth int `json:"dlq_depth"`

	Since       time.Time `json:"since"`
	CollectedAt time.Time `json:"collected_at"`
}

// DeadLetterCounter reports how many jobs are dead-lettered.
type DeadLetterCounter interface {
	CountDead(ctx context.Context) (int, error)
}

// Collector turns the worker's running totals into windowed snapshots.
type Collector struct {
	metrics *Metrics
	dlq     DeadLetterCounter

	mu   sync.Mutex
	last totals
	at   time.Time
}

// NewCollector creates a collector. dlq may be nil.
func NewCollector(m *Metrics, dlq DeadLetterCounter) *Collector {
	return &Collector{metrics: m, dlq: dlq, last: m.totals(), at: time.Now().UTC()}
}

// Collect returns activity since the previous call and refreshes the
// dead-letter gauge.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	cur := c.metrics.totals()
	snap := &MetricsSnapshot{
		JobsFinished: int(cur.finished - c.last.finished),
		JobsFailed:   int(cur.failed - c.last.failed),
		LeadsCreated: int(cur.leads - c.last.leads),
		DLQDepth:     -1,
		Since:        c.at,
		CollectedAt:  now,
	}
	if snap.JobsFinished > 0 {
		snap.FailRate = float64(snap.JobsFailed) / float64(snap.JobsFinished)
	}

	if c.dlq != nil {
		n, err := c.dlq.CountDead(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count dead letters")
		}
		snap.DLQDepth = n
		c.metrics.SetDLQDepth(n)
	}

	c.last = cur
	c.at = now
	return snap, nil
}

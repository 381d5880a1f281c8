// Package monitoring exposes Prometheus metrics for the enrichment worker
// and raises webhook alerts when failure rates or dead-letter depth climb.
package monitoring

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/waterfall"
)

const namespace = "visitor_enrich"

// Job outcomes recorded by JobFinished.
const (
	JobLeadCreated     = "lead_created"
	JobNoLead          = "no_lead"
	JobAlreadyEnriched = "already_enriched"
	JobFailed          = "failed"
)

// Provider stages used as the "stage" label.
const (
	StageIdentity = "identity"
	StageDeepen   = "deepen"
	StageContact  = "contact"
)

// Metrics holds the worker's collectors. A nil *Metrics records nothing.
type Metrics struct {
	jobs            *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	transitions     *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	leads           *prometheus.CounterVec
	dlqDepth        prometheus.Gauge

	finished     atomic.Int64
	failed       atomic.Int64
	leadsCreated atomic.Int64
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Enrichment jobs finished, by outcome.",
		}, []string{"outcome"}),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of one enrichment job.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_state_transitions_total",
			Help:      "Worker state machine transitions, by state entered.",
		}, []string{"state"}),
		providerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider attempts, by stage, provider and outcome.",
		}, []string{"stage", "provider", "outcome"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Provider call latency, by stage and provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "provider"}),
		leads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_total",
			Help:      "Lead writes, by whether a new row was created.",
		}, []string{"result"}),
		dlqDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dead_letter_jobs",
			Help:      "Jobs currently dead-lettered.",
		}),
	}
}

// JobFinished records a job's outcome and duration.
func (m *Metrics) JobFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(d.Seconds())
	m.finished.Add(1)
	if outcome == JobFailed {
		m.failed.Add(1)
	}
}

// Transition counts a state machine step.
func (m *Metrics) Transition(state model.JobState) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(state)).Inc()
}

// LeadStored counts a CreateLead call.
func (m *Metrics) LeadStored(created bool) {
	if m == nil {
		return
	}
	if created {
		m.leads.WithLabelValues("created").Inc()
		m.leadsCreated.Add(1)
		return
	}
	m.leads.WithLabelValues("existing").Inc()
}

// SetDLQDepth publishes the current dead-letter count.
func (m *Metrics) SetDLQDepth(n int) {
	if m == nil {
		return
	}
	m.dlqDepth.Set(float64(n))
}

// Observer returns a waterfall observer that counts attempts under stage.
// It is safe for concurrent use.
func (m *Metrics) Observer(stage string) waterfall.Observer {
	return func(a waterfall.Attempt) {
		if m == nil {
			return
		}
		m.providerCalls.WithLabelValues(stage, a.Provider, string(a.Outcome)).Inc()
		if a.Outcome != waterfall.OutcomeSkipped {
			m.providerLatency.WithLabelValues(stage, a.Provider).Observe(a.Duration.Seconds())
		}
	}
}

type totals struct {
	finished int64
	failed   int64
	leads    int64
}

func (m *Metrics) totals() totals {
	if m == nil {
		return totals{}
	}
	return totals{
		finished: m.finished.Load(),
		failed:   m.failed.Load(),
		leads:    m.leadsCreated.Load(),
	}
}

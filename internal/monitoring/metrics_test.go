package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/waterfall"
)

func TestMetrics_Jobs(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.JobFinished(JobLeadCreated, time.Second)
	m.JobFinished(JobFailed, time.Second)
	m.JobFinished(JobFailed, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues(JobLeadCreated)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobs.WithLabelValues(JobFailed)))
	assert.Equal(t, totals{finished: 3, failed: 2}, m.totals())
}

func TestMetrics_TransitionsAndLeads(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Transition(model.JobStateReceived)
	m.Transition(model.JobStateReceived)
	m.LeadStored(true)
	m.LeadStored(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues(string(model.JobStateReceived))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leads.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leads.WithLabelValues("existing")))
	assert.Equal(t, int64(1), m.totals().leads)
}

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	observe := m.Observer(StageContact)

	observe(waterfall.Attempt{Provider: "hunter", Outcome: waterfall.OutcomeHit, Duration: 20 * time.Millisecond})
	observe(waterfall.Attempt{Provider: "apollo", Outcome: waterfall.OutcomeSkipped})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues(StageContact, "hunter", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues(StageContact, "apollo", "skipped")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.providerLatency))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobFinished(JobNoLead, time.Second)
		m.Transition(model.JobStateDone)
		m.LeadStored(true)
		m.SetDLQDepth(3)
		m.Observer(StageIdentity)(waterfall.Attempt{Provider: "ipapi"})
	})
	assert.Equal(t, totals{}, m.totals())
}

func TestNewMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

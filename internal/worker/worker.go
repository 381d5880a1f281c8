// Package worker drives one enrichment job through identity resolution,
// contact fan-out, merge, and persistence.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/lead"
	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/monitoring"
	"github.com/sells-group/visitor-enrich/internal/resilience"
	"github.com/sells-group/visitor-enrich/internal/store"
	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
)

// DefaultJobTimeout bounds a single job end to end.
const DefaultJobTimeout = 2 * time.Minute

// IdentityResolver maps a visit to a company. A nil identity means no
// provider matched.
type IdentityResolver interface {
	Resolve(ctx context.Context, ip, userAgent string) *model.CompanyIdentity
}

// ContactEnricher returns contact results in provider priority order.
type ContactEnricher interface {
	Enrich(ctx context.Context, req provider.ContactRequest) []model.ProviderResult
}

// Report describes how a processed job ended.
type Report struct {
	State       model.JobState         `json:"state"`
	Outcome     string                 `json:"outcome"`
	Identity    *model.CompanyIdentity `json:"identity,omitempty"`
	Company     *model.Company         `json:"company,omitempty"`
	Results     []model.ProviderResult `json:"results,omitempty"`
	Lead        *model.Lead            `json:"lead,omitempty"`
	LeadCreated bool                   `json:"lead_created"`
}

// Worker processes enrichment jobs.
type Worker struct {
	store      store.Gateway
	identity   IdentityResolver
	contacts   ContactEnricher
	metrics    *monitoring.Metrics
	jobTimeout time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithMetrics records transitions and outcomes on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithJobTimeout overrides DefaultJobTimeout. Zero disables the bound.
func WithJobTimeout(d time.Duration) Option {
	return func(w *Worker) { w.jobTimeout = d }
}

// New creates a Worker.
func New(gw store.Gateway, identity IdentityResolver, contacts ContactEnricher, opts ...Option) *Worker {
	w := &Worker{
		store:      gw,
		identity:   identity,
		contacts:   contacts,
		jobTimeout: DefaultJobTimeout,
	}
	for _, fn := range opts {
		fn(w)
	}
	return w
}

// run tracks one job's progress through the state machine.
type run struct {
	job     model.EnrichmentJob
	log     *zap.Logger
	metrics *monitoring.Metrics
	report  Report
}

func (r *run) transition(to model.JobState) {
	r.log.Debug("worker: transition",
		zap.String("from", string(r.report.State)),
		zap.String("to", string(to)),
	)
	r.report.State = to
	r.metrics.Transition(to)
}

// fail moves the run to FAILED and returns err.
func (r *run) fail(err error, msg string) error {
	r.transition(model.JobStateFailed)
	r.report.Outcome = monitoring.JobFailed
	r.log.Error(msg, zap.Error(err))
	return err
}

// Process runs job to a terminal state. A visitor that no longer exists
// yields a permanent error. Any other failure is retryable and the
// transport may redeliver the job; every step is safe to repeat.
func (w *Worker) Process(ctx context.Context, job model.EnrichmentJob) (Report, error) {
	start := time.Now()
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	r := &run{
		job: job,
		log: zap.L().With(
			zap.String("job_id", job.ID),
			zap.String("visitor_id", job.VisitorID),
			zap.Int("attempt", job.Attempt),
		),
		metrics: w.metrics,
	}
	err := w.process(ctx, r)
	w.metrics.JobFinished(r.report.Outcome, time.Since(start))
	return r.report, err
}

func (w *Worker) process(ctx context.Context, r *run) error {
	job := r.job
	r.transition(model.JobStateReceived)

	visitor, err := w.store.GetVisitor(ctx, job.VisitorID)
	if errors.Is(err, store.ErrNotFound) {
		return r.fail(resilience.NewPermanentError(err), "worker: visitor not found")
	}
	if err != nil {
		return r.fail(eris.Wrap(err, "worker: load visitor"), "worker: load visitor failed")
	}
	if visitor.IsEnriched {
		r.log.Info("worker: visitor already enriched")
		r.report.Outcome = monitoring.JobAlreadyEnriched
		r.transition(model.JobStateDone)
		return nil
	}

	if job.ClientID == "" {
		job.ClientID = visitor.ClientID
	}
	ip, userAgent := job.IPAddress, job.UserAgent
	if ip == "" {
		ip = visitor.IPAddress
	}
	if userAgent == "" {
		userAgent = visitor.UserAgent
	}

	r.transition(model.JobStateResolvingIdentity)
	var companyID *int64
	identity := w.identity.Resolve(ctx, ip, userAgent)
	r.report.Identity = identity
	if identity != nil && identity.Domain != "" {
		company, err := w.store.UpsertCompanyByDomain(ctx, identity)
		if err != nil {
			return r.fail(eris.Wrap(err, "worker: upsert company"), "worker: upsert company failed")
		}
		r.report.Company = company
		companyID = &company.ID
	}

	r.transition(model.JobStateFanningOut)
	req := provider.ContactRequest{IP: ip, UserAgent: userAgent}
	if identity != nil {
		req.Domain = identity.Domain
	}
	results := w.contacts.Enrich(ctx, req)
	r.report.Results = results

	r.transition(model.JobStateMerging)
	candidate := lead.FromFields(lead.Merge(results), job, companyID)
	if candidate == nil {
		r.report.Outcome = monitoring.JobNoLead
		r.transition(model.JobStateNoLead)
	} else {
		stored, created, err := w.store.CreateLead(ctx, candidate)
		if err != nil {
			return r.fail(eris.Wrap(err, "worker: create lead"), "worker: create lead failed")
		}
		w.metrics.LeadStored(created)
		for _, res := range results {
			if err := w.store.RecordProviderResult(ctx, stored.ID, res); err != nil {
				return r.fail(eris.Wrapf(err, "worker: record %s result", res.Provider), "worker: record provider result failed")
			}
		}
		r.report.Lead = stored
		r.report.LeadCreated = created
		r.report.Outcome = monitoring.JobLeadCreated
		r.transition(model.JobStateLeadCreated)
	}

	r.transition(model.JobStateMarkEnriched)
	if err := w.store.MarkVisitorEnriched(ctx, job.VisitorID, companyID); err != nil {
		return r.fail(eris.Wrap(err, "worker: mark enriched"), "worker: mark enriched failed")
	}
	r.transition(model.JobStateDone)

	fields := []zap.Field{
		zap.String("outcome", r.report.Outcome),
		zap.Int("results", len(results)),
	}
	if r.report.Lead != nil {
		fields = append(fields,
			zap.String("lead_id", r.report.Lead.ID),
			zap.Int("score", r.report.Lead.Score),
			zap.Bool("created", r.report.LeadCreated),
		)
	}
	if companyID != nil {
		fields = append(fields, zap.Int64("company_id", *companyID))
	}
	r.log.Info("worker: job complete", fields...)
	return nil
}

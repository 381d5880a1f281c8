// Package queue delivers enrichment jobs to the worker at least once.
package queue

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/resilience"
)

// ErrMalformedJob marks a payload that can never be processed.
var ErrMalformedJob = eris.New("queue: malformed job")

// Delivery is one claimed job. Exactly one of Ack or Fail must be called.
type Delivery struct {
	Job model.EnrichmentJob

	ack  func(ctx context.Context) error
	fail func(ctx context.Context, cause error) error
}

// NewDelivery builds a delivery settled by the given callbacks. Transports
// outside this package and tests use it.
func NewDelivery(job model.EnrichmentJob, ack func(ctx context.Context) error, fail func(ctx context.Context, cause error) error) *Delivery {
	return &Delivery{Job: job, ack: ack, fail: fail}
}

// Ack settles the job as done.
func (d *Delivery) Ack(ctx context.Context) error {
	return d.ack(ctx)
}

// Fail settles the job as failed. Permanent causes (see
// resilience.ClassifyError) are dead-lettered; anything else is redelivered
// until the transport's attempt limit.
func (d *Delivery) Fail(ctx context.Context, cause error) error {
	return d.fail(ctx, cause)
}

// Source hands out jobs one at a time. It is safe for concurrent use.
type Source interface {
	// Next blocks until a job is available or ctx is done.
	Next(ctx context.Context) (*Delivery, error)
	Close() error
}

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, job model.EnrichmentJob) error
	Close() error
}

// DecodeJob parses a job payload. Payloads that cannot become a job return
// a permanent ErrMalformedJob. Only visitor_id is required; the worker fills
// the address, user agent and client from the stored visitor.
func DecodeJob(body []byte) (model.EnrichmentJob, error) {
	var job model.EnrichmentJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, resilience.NewPermanentError(eris.Wrapf(ErrMalformedJob, "decode: %v", err))
	}
	if strings.TrimSpace(job.VisitorID) == "" {
		return job, resilience.NewPermanentError(eris.Wrap(ErrMalformedJob, "missing visitor_id"))
	}
	return job, nil
}

func encodeJob(job model.EnrichmentJob) ([]byte, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, eris.Wrap(err, "queue: encode job")
	}
	return body, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Package waterfall runs ordered provider cascades and concurrent fan-outs.
package waterfall

import (
	"context"
	"time"
)

// Outcome classifies a single provider attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeHit         Outcome = "hit"
	OutcomeMiss        Outcome = "miss"
	OutcomeError       Outcome = "error"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeCircuitOpen Outcome = "circuit_open"
)

// Step is one provider call in a cascade or fan-out.
type Step[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Attempt records how one step went.
type Attempt struct {
	Provider string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Result is the outcome of a cascade.
type Result[T any] struct {
	Value    T
	Provider string
	Found    bool
	Attempts []Attempt
}

// Hit is a successful fan-out step.
type Hit[T any] struct {
	Provider string
	Value    T
}

// Observer receives every attempt as it finishes. Gather calls it from
// several goroutines at once.
type Observer func(Attempt)

// Option configures Cascade and Gather.
type Option func(*options)

type options struct {
	observe Observer
}

// WithObserver reports every attempt to fn.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observe = fn }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

package waterfall

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/visitor-enrich/internal/resilience"
	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
)

// Cascade tries steps in order and stops at the first value accept approves.
// Provider errors never abort the cascade; they are logged and the next step
// runs. A cancelled context stops the cascade with Found false.
func Cascade[T any](ctx context.Context, steps []Step[T], accept func(T) bool, opts ...Option) Result[T] {
	o := buildOptions(opts)
	var res Result[T]

	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		v, err := step.Run(ctx)
		a := Attempt{Provider: step.Name, Duration: time.Since(start), Err: err}

		switch {
		case err != nil:
			a.Outcome = classify(err)
		case accept(v):
			a.Outcome = OutcomeHit
		default:
			a.Outcome = OutcomeMiss
		}
		record(&o, a)
		res.Attempts = append(res.Attempts, a)

		if a.Outcome == OutcomeHit {
			res.Value = v
			res.Provider = step.Name
			res.Found = true
			return res
		}
	}

	return res
}

// Gather runs every step concurrently and waits for all of them. It returns
// the values accept approves, in step order, plus one attempt per step.
// Failed steps are dropped from the hits.
func Gather[T any](ctx context.Context, steps []Step[T], accept func(T) bool, opts ...Option) ([]Hit[T], []Attempt) {
	o := buildOptions(opts)

	values := make([]T, len(steps))
	attempts := make([]Attempt, len(steps))

	var g errgroup.Group

	for i, step := range steps {
		g.Go(func() error {
			start := time.Now()
			v, err := step.Run(ctx)
			a := Attempt{Provider: step.Name, Duration: time.Since(start), Err: err}
			switch {
			case err != nil:
				a.Outcome = classify(err)
			case accept(v):
				a.Outcome = OutcomeHit
				values[i] = v
			default:
				a.Outcome = OutcomeMiss
			}
			attempts[i] = a
			record(&o, a)
			return nil
		})
	}
	_ = g.Wait()

	var hits []Hit[T]
	for i, a := range attempts {
		if a.Outcome == OutcomeHit {
			hits = append(hits, Hit[T]{Provider: a.Provider, Value: values[i]})
		}
	}
	return hits, attempts
}

// Guard bounds a step with a per-call timeout and a circuit breaker.
// A missing credential passes through without touching the breaker's
// failure count. A call that fails after the caller's own context ended is
// reported as context.Canceled, so breakers using
// resilience.ShouldTripProvider do not count it.
func Guard[T any](step Step[T], timeout time.Duration, cb *resilience.CircuitBreaker) Step[T] {
	run := step.Run
	return Step[T]{
		Name: step.Name,
		Run: func(ctx context.Context) (T, error) {
			parent := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			if cb == nil {
				return run(ctx)
			}

			var (
				out     T
				skipErr error
			)
			err := cb.Execute(ctx, func(ctx context.Context) error {
				v, err := run(ctx)
				out = v
				if errors.Is(err, provider.ErrNotConfigured) {
					skipErr = err
					return nil
				}
				if err != nil && parent.Err() != nil {
					return errors.Join(context.Canceled, err)
				}
				return err
			})
			if err != nil {
				var zero T
				return zero, err
			}
			return out, skipErr
		},
	}
}

// Limits looks up per-provider call bounds by step name.
type Limits struct {
	Timeout  func(provider string) time.Duration
	Breakers *resilience.Breakers
}

// Guarded applies Guard to every step using l.
func Guarded[T any](steps []Step[T], l Limits) []Step[T] {
	out := make([]Step[T], len(steps))
	for i, s := range steps {
		var timeout time.Duration
		if l.Timeout != nil {
			timeout = l.Timeout(s.Name)
		}
		var cb *resilience.CircuitBreaker
		if l.Breakers != nil {
			cb = l.Breakers.Get(s.Name)
		}
		out[i] = Guard(s, timeout, cb)
	}
	return out
}

func classify(err error) Outcome {
	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		return OutcomeSkipped
	case errors.Is(err, resilience.ErrCircuitOpen):
		return OutcomeCircuitOpen
	default:
		return OutcomeError
	}
}

func record(o *options, a Attempt) {
	log := zap.L().With(
		zap.String("provider", a.Provider),
		zap.String("outcome", string(a.Outcome)),
		zap.Duration("duration", a.Duration),
	)
	switch a.Outcome {
	case OutcomeSkipped:
		log.Debug("waterfall: provider skipped")
	case OutcomeError, OutcomeCircuitOpen:
		log.Warn("waterfall: provider failed", zap.Error(a.Err))
	default:
		log.Debug("waterfall: provider finished")
	}
	if o.observe != nil {
		o.observe(a)
	}
}

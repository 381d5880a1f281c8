// Package contact fans a visit out to every contact provider at once.
package contact

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/waterfall"
	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
)

// FanOut queries every contact provider concurrently and joins on all.
type FanOut struct {
	providers []provider.ContactProvider
	limits    waterfall.Limits
	observe   waterfall.Observer
}

// Option configures a FanOut.
type Option func(*FanOut)

// WithLimits bounds every provider call.
func WithLimits(l waterfall.Limits) Option {
	return func(f *FanOut) { f.limits = l }
}

// WithObserver reports each provider attempt.
func WithObserver(fn waterfall.Observer) Option {
	return func(f *FanOut) { f.observe = fn }
}

// NewFanOut creates a fan-out over providers in priority order.
func NewFanOut(providers []provider.ContactProvider, opts ...Option) *FanOut {
	f := &FanOut{providers: providers}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enrich returns the non-empty results of every provider, in provider
// priority order regardless of arrival order. Failed providers are logged
// and dropped; the returned slice may be empty.
func (f *FanOut) Enrich(ctx context.Context, req provider.ContactRequest) []model.ProviderResult {
	steps := make([]waterfall.Step[*model.ProviderResult], 0, len(f.providers))
	for _, p := range f.providers {
		steps = append(steps, waterfall.Step[*model.ProviderResult]{
			Name: p.Name(),
			Run: func(ctx context.Context) (*model.ProviderResult, error) {
				return p.EnrichContact(ctx, req)
			},
		})
	}
	steps = waterfall.Guarded(steps, f.limits)

	var opts []waterfall.Option
	if f.observe != nil {
		opts = append(opts, waterfall.WithObserver(f.observe))
	}
	hits, attempts := waterfall.Gather(ctx, steps, func(r *model.ProviderResult) bool {
		return r != nil && !r.Empty()
	}, opts...)

	results := make([]model.ProviderResult, 0, len(hits))
	for _, h := range hits {
		r := *h.Value
		if r.Provider == "" {
			r.Provider = h.Provider
		}
		r.Confidence = normalizeConfidence(r.Confidence)
		results = append(results, r)
	}

	zap.L().Info("contact: fan-out finished",
		zap.String("ip", req.IP),
		zap.String("domain", req.Domain),
		zap.Int("providers", len(attempts)),
		zap.Int("results", len(results)),
	)
	return results
}

// normalizeConfidence defaults a missing confidence and clamps to [0,1].
func normalizeConfidence(c float64) float64 {
	switch {
	case c <= 0:
		return model.DefaultConfidence
	case c > 1:
		return 1
	default:
		return c
	}
}

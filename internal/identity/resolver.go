// Package identity resolves the company behind a visitor's IP address.
package identity

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/waterfall"
	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
)

// Resolver runs the identity waterfall and the optional deepening lookup.
type Resolver struct {
	providers     []provider.IdentityProvider
	deepener      provider.CompanyProvider
	limits        waterfall.Limits
	observe       waterfall.Observer
	observeDeepen waterfall.Observer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDeepener sets the company source consulted once a domain is known.
func WithDeepener(p provider.CompanyProvider) Option {
	return func(r *Resolver) { r.deepener = p }
}

// WithLimits bounds every provider call.
func WithLimits(l waterfall.Limits) Option {
	return func(r *Resolver) { r.limits = l }
}

// WithObserver reports each provider attempt, including the deepening call.
func WithObserver(fn waterfall.Observer) Option {
	return func(r *Resolver) { r.observe = fn }
}

// WithDeepenObserver reports the deepening call to fn instead of the
// WithObserver observer.
func WithDeepenObserver(fn waterfall.Observer) Option {
	return func(r *Resolver) { r.observeDeepen = fn }
}

// NewResolver creates a resolver that tries providers in the given order.
func NewResolver(providers []provider.IdentityProvider, opts ...Option) *Resolver {
	r := &Resolver{providers: providers}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first non-empty identity for ip, deepened by domain
// when possible. It returns nil when every provider fails or abstains.
// Provider failures are logged, never returned. userAgent is carried for
// logging; no identity source keys on it.
func (r *Resolver) Resolve(ctx context.Context, ip, userAgent string) *model.CompanyIdentity {
	log := zap.L().With(zap.String("ip", ip), zap.String("user_agent", userAgent))

	steps := make([]waterfall.Step[*model.CompanyIdentity], 0, len(r.providers))
	for _, p := range r.providers {
		steps = append(steps, waterfall.Step[*model.CompanyIdentity]{
			Name: p.Name(),
			Run: func(ctx context.Context) (*model.CompanyIdentity, error) {
				return p.ResolveIdentity(ctx, ip)
			},
		})
	}
	steps = waterfall.Guarded(steps, r.limits)

	res := waterfall.Cascade(ctx, steps, func(id *model.CompanyIdentity) bool {
		return !id.IsEmpty()
	}, r.options()...)
	if !res.Found {
		log.Info("identity: no company resolved", zap.Int("attempts", len(res.Attempts)))
		return nil
	}

	id := res.Value
	id.Domain = model.NormalizeDomain(id.Domain)
	if id.Source == "" {
		id.Source = res.Provider
	}
	log.Info("identity: company resolved",
		zap.String("provider", res.Provider),
		zap.String("domain", id.Domain),
		zap.String("name", id.Name),
	)

	if id.Domain != "" && r.deepener != nil {
		r.deepen(ctx, id, log)
	}
	return id
}

// deepen overlays the deepening source's fields onto id. The resolved
// domain is kept even when the deeper record reports a different one.
func (r *Resolver) deepen(ctx context.Context, id *model.CompanyIdentity, log *zap.Logger) {
	domain := id.Domain
	step := waterfall.Guarded([]waterfall.Step[*model.CompanyIdentity]{{
		Name: r.deepener.Name(),
		Run: func(ctx context.Context) (*model.CompanyIdentity, error) {
			return r.deepener.FindCompany(ctx, domain)
		},
	}}, r.limits)

	res := waterfall.Cascade(ctx, step, func(d *model.CompanyIdentity) bool {
		return d != nil
	}, r.deepenOptions()...)
	if !res.Found {
		return
	}

	id.Overlay(res.Value)
	id.Domain = domain
	log.Debug("identity: company deepened", zap.String("provider", res.Provider))
}

func (r *Resolver) deepenOptions() []waterfall.Option {
	if r.observeDeepen == nil {
		return r.options()
	}
	return []waterfall.Option{waterfall.WithObserver(r.observeDeepen)}
}

func (r *Resolver) options() []waterfall.Option {
	if r.observe == nil {
		return nil
	}
	return []waterfall.Option{waterfall.WithObserver(r.observe)}
}

// Package provider defines the contracts for identity, company, and contact
// data providers and an ordered registry for each shape.
package provider

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/model"
)

// ErrNotConfigured is returned by a provider whose credential is missing.
// Callers skip the provider without counting it as a failure.
var ErrNotConfigured = eris.New("provider not configured")

// Error tags a client failure with the provider that raised it.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string { return e.Provider + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err tagged with name, or nil when err is nil.
func Wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: name, Err: err}
}

// Named is implemented by every provider.
type Named interface {
	// Name returns the provider tag recorded with its results.
	Name() string
}

// IdentityProvider maps an IP address to the company that owns it.
// A nil identity with a nil error means the provider had no match.
type IdentityProvider interface {
	Named
	ResolveIdentity(ctx context.Context, ip string) (*model.CompanyIdentity, error)
}

// CompanyProvider looks up firmographic detail for a known domain.
type CompanyProvider interface {
	Named
	FindCompany(ctx context.Context, domain string) (*model.CompanyIdentity, error)
}

// ContactRequest carries what a contact provider may key its lookup on.
type ContactRequest struct {
	IP        string
	UserAgent string
	// Domain is the resolved company domain, empty when identity failed.
	Domain string
}

// ContactProvider returns person-level fields for a visit.
// A nil result with a nil error means the provider abstained.
type ContactProvider interface {
	Named
	EnrichContact(ctx context.Context, req ContactRequest) (*model.ProviderResult, error)
}

// Registry holds providers of one shape in registration order.
type Registry[P Named] struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]P
}

// NewRegistry creates an empty provider registry.
func NewRegistry[P Named]() *Registry[P] {
	return &Registry[P]{
		providers: make(map[string]P),
	}
}

// Register adds a provider. Registering a name twice replaces the provider
// but keeps its original position.
func (r *Registry[P]) Register(p P) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get returns a provider by name.
func (r *Registry[P]) Get(name string) (P, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns registered provider names in registration order.
func (r *Registry[P]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Ordered returns the providers named in order. Unknown names are logged
// and skipped. A nil order returns every provider in registration order.
func (r *Registry[P]) Ordered(order []string) []P {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if order == nil {
		order = r.order
	}
	out := make([]P, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if seen[name] {
			continue
		}
		p, ok := r.providers[name]
		if !ok {
			zap.L().Warn("provider: unknown provider in order", zap.String("provider", name))
			continue
		}
		seen[name] = true
		out = append(out, p)
	}
	return out
}

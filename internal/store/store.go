// Package store persists visitors, companies, leads and provider results.
package store

import (
	"context"
	"embed"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visitor-enrich/internal/model"
)

// Sentinel errors returned by every Gateway implementation.
var (
	ErrNotFound = eris.New("store: not found")
	ErrConflict = eris.New("store: conflict")
)

//go:embed migrations
var migrations embed.FS

// DefaultWriteTimeout bounds every write when no timeout is configured.
const DefaultWriteTimeout = 10 * time.Second

// Gateway is the persistence surface the enrichment worker depends on.
type Gateway interface {
	// GetVisitor returns ErrNotFound when no visitor has the id.
	GetVisitor(ctx context.Context, id string) (*model.Visitor, error)
	CreateVisitor(ctx context.Context, v *model.Visitor) error
	// MarkVisitorEnriched sets is_enriched and, when companyID is non-nil,
	// links the visitor to that company.
	MarkVisitorEnriched(ctx context.Context, id string, companyID *int64) error

	// UpsertCompanyByDomain inserts the company or merges the identity's
	// non-empty fields over the stored row with the same domain.
	UpsertCompanyByDomain(ctx context.Context, identity *model.CompanyIdentity) (*model.Company, error)

	// CreateLead inserts lead unless the visitor already has one. The bool
	// reports whether a row was created; otherwise the stored lead is returned.
	CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, bool, error)
	// RecordProviderResult stores one provider's payload against a lead,
	// replacing any earlier payload from the same provider.
	RecordProviderResult(ctx context.Context, leadID string, result model.ProviderResult) error

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Option configures a gateway.
type Option func(*options)

type options struct {
	writeTimeout time.Duration
}

// WithWriteTimeout bounds each write. Non-positive values keep the default.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{writeTimeout: DefaultWriteTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

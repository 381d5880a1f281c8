package store

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/db"
	"github.com/sells-group/visitor-enrich/internal/model"
)

var pgQueries = postgresDialect.queries()

// PostgresGateway implements Gateway on a pgx pool.
type PostgresGateway struct {
	pool db.Pool
	opts options
}

var _ Gateway = (*PostgresGateway)(nil)

// NewPostgres wraps an open pool. The gateway owns the pool and closes it.
func NewPostgres(pool db.Pool, opts ...Option) *PostgresGateway {
	return &PostgresGateway{pool: pool, opts: buildOptions(opts)}
}

// Pool returns the underlying pool so the Postgres job queue can share it.
func (s *PostgresGateway) Pool() db.Pool {
	return s.pool
}

func (s *PostgresGateway) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate applies the embedded Postgres migrations with goose.
func (s *PostgresGateway) Migrate(ctx context.Context) error {
	p, ok := s.pool.(*pgxpool.Pool)
	if !ok {
		return eris.New("postgres: migrate needs a *pgxpool.Pool")
	}
	sqlDB := stdlib.OpenDBFromPool(p)
	defer sqlDB.Close() //nolint:errcheck

	fsys, err := fs.Sub(migrations, "migrations/postgres")
	if err != nil {
		return eris.Wrap(err, "postgres: migrations fs")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return eris.Wrap(err, "postgres: goose provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	for _, r := range results {
		zap.L().Info("postgres: applied migration",
			zap.String("source", r.Source.Path),
			zap.Duration("duration", r.Duration),
		)
	}
	return nil
}

func (s *PostgresGateway) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresGateway) GetVisitor(ctx context.Context, id string) (*model.Visitor, error) {
	v, err := scanVisitor(s.pool.QueryRow(ctx, pgQueries.getVisitor, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: visitor %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get visitor %s", id)
	}
	return v, nil
}

func (s *PostgresGateway) CreateVisitor(ctx context.Context, v *model.Visitor) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, pgQueries.insertVisitor, visitorArgs(v)...); err != nil {
		if db.IsUniqueViolation(err) {
			return eris.Wrapf(ErrConflict, "postgres: visitor %s exists", v.ID)
		}
		return eris.Wrap(err, "postgres: create visitor")
	}
	return nil
}

func (s *PostgresGateway) MarkVisitorEnriched(ctx context.Context, id string, companyID *int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, pgQueries.markEnriched, companyID, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark visitor %s enriched", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: visitor %s", id)
	}
	return nil
}

func (s *PostgresGateway) UpsertCompanyByDomain(ctx context.Context, identity *model.CompanyIdentity) (*model.Company, error) {
	if identity == nil || model.NormalizeDomain(identity.Domain) == "" {
		return nil, eris.New("postgres: upsert company: domain is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	normalized := *identity
	normalized.Domain = model.NormalizeDomain(identity.Domain)
	args, err := companyArgs(&normalized, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	c, err := scanCompany(s.pool.QueryRow(ctx, pgQueries.upsertCompany, args...))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert company %s", identity.Domain)
	}
	return c, nil
}

func (s *PostgresGateway) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	l := *lead
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	var id string
	err := s.pool.QueryRow(ctx, pgQueries.insertLead, leadArgs(&l)...).Scan(&id)
	switch {
	case err == nil:
		return &l, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, false, eris.Wrapf(err, "postgres: create lead for visitor %s", l.VisitorID)
	}

	// The visitor already has a lead; hand back the stored one.
	existing, err := scanLead(s.pool.QueryRow(ctx, pgQueries.leadByVisitor, l.VisitorID))
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: load lead for visitor %s", l.VisitorID)
	}
	return existing, false, nil
}

func (s *PostgresGateway) RecordProviderResult(ctx context.Context, leadID string, result model.ProviderResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	data, err := resultData(result)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgQueries.upsertResult,
		uuid.New().String(), leadID, result.Provider, result.Confidence, data, time.Now().UTC())
	return eris.Wrapf(err, "postgres: record %s result for lead %s", result.Provider, leadID)
}

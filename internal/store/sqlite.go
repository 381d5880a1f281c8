package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/visitor-enrich/internal/model"
)

var sqliteQueries = sqliteDialect.queries()

// SQLiteGateway implements Gateway using modernc.org/sqlite. It is meant for
// local runs and tests.
type SQLiteGateway struct {
	db   *sql.DB
	opts options
}

var _ Gateway = (*SQLiteGateway)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts ...Option) (*SQLiteGateway, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteGateway{db: db, opts: buildOptions(opts)}, nil
}

func (s *SQLiteGateway) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate applies the embedded SQLite migrations with goose.
func (s *SQLiteGateway) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations/sqlite")
	if err != nil {
		return eris.Wrap(err, "sqlite: migrations fs")
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return eris.Wrap(err, "sqlite: goose provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	for _, r := range results {
		zap.L().Debug("sqlite: applied migration", zap.String("source", r.Source.Path))
	}
	return nil
}

func (s *SQLiteGateway) Close() error {
	return s.db.Close()
}

func (s *SQLiteGateway) GetVisitor(ctx context.Context, id string) (*model.Visitor, error) {
	v, err := scanVisitor(s.db.QueryRowContext(ctx, sqliteQueries.getVisitor, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: visitor %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get visitor %s", id)
	}
	return v, nil
}

func (s *SQLiteGateway) CreateVisitor(ctx context.Context, v *model.Visitor) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, sqliteQueries.insertVisitor, visitorArgs(v)...); err != nil {
		if isSQLiteConflict(err) {
			return eris.Wrapf(ErrConflict, "sqlite: visitor %s exists", v.ID)
		}
		return eris.Wrap(err, "sqlite: create visitor")
	}
	return nil
}

func (s *SQLiteGateway) MarkVisitorEnriched(ctx context.Context, id string, companyID *int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, sqliteQueries.markEnriched, companyID, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark visitor %s enriched", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: visitor %s", id)
	}
	return nil
}

func (s *SQLiteGateway) UpsertCompanyByDomain(ctx context.Context, identity *model.CompanyIdentity) (*model.Company, error) {
	if identity == nil || model.NormalizeDomain(identity.Domain) == "" {
		return nil, eris.New("sqlite: upsert company: domain is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	normalized := *identity
	normalized.Domain = model.NormalizeDomain(identity.Domain)
	args, err := companyArgs(&normalized, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	c, err := scanCompany(s.db.QueryRowContext(ctx, sqliteQueries.upsertCompany, args...))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert company %s", identity.Domain)
	}
	return c, nil
}

func (s *SQLiteGateway) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, bool, error) {
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
	err := s.db.QueryRowContext(ctx, sqliteQueries.insertLead, leadArgs(&l)...).Scan(&id)
	switch {
	case err == nil:
		return &l, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, eris.Wrapf(err, "sqlite: create lead for visitor %s", l.VisitorID)
	}

	existing, err := scanLead(s.db.QueryRowContext(ctx, sqliteQueries.leadByVisitor, l.VisitorID))
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: load lead for visitor %s", l.VisitorID)
	}
	return existing, false, nil
}

func (s *SQLiteGateway) RecordProviderResult(ctx context.Context, leadID string, result model.ProviderResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	data, err := resultData(result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqliteQueries.upsertResult,
		uuid.New().String(), leadID, result.Provider, result.Confidence, data, time.Now().UTC())
	return eris.Wrapf(err, "sqlite: record %s result for lead %s", result.Provider, leadID)
}

func isSQLiteConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

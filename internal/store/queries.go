package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visitor-enrich/internal/model"
)

// companyColumns is the write order of a company row after its id.
var companyColumns = []string{
	"domain", "name", "legal_name", "industry", "sector", "size", "employees",
	"revenue", "location", "city", "state", "country", "country_code",
	"description", "logo", "linkedin", "twitter", "facebook", "founded_year",
	"technologies", "tags", "phone_numbers", "email_addresses", "extra",
}

var leadColumns = []string{
	"id", "client_id", "visitor_id", "user_id", "company_id",
	"email", "first_name", "last_name", "company", "title", "phone",
	"linkedin_url", "twitter_url", "facebook_url", "instagram_url", "website",
	"location", "industry", "company_size", "revenue", "description",
	"score", "source", "created_at",
}

const visitorColumns = "id, ip_address, user_agent, page_url, session_id, client_id, company_id, is_enriched, created_at"

// dialect captures the SQL differences between Postgres and SQLite.
type dialect struct {
	bind      func(n int) string
	mergeJSON string // format taking (stored, incoming) JSON objects
	truth     string
}

var (
	postgresDialect = dialect{
		bind:      func(n int) string { return "$" + strconv.Itoa(n) },
		mergeJSON: "%s || %s",
		truth:     "TRUE",
	}
	sqliteDialect = dialect{
		bind:      func(int) string { return "?" },
		mergeJSON: "json_patch(%s, %s)",
		truth:     "1",
	}
)

// queries holds one dialect's statements. Every statement references its
// parameters in ascending order so "?" binding stays positional.
type queries struct {
	getVisitor    string
	insertVisitor string
	markEnriched  string
	upsertCompany string
	insertLead    string
	leadByVisitor string
	upsertResult  string
}

func (d dialect) binds(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.bind(from + i)
	}
	return strings.Join(parts, ", ")
}

func (d dialect) queries() queries {
	var q queries

	q.getVisitor = "SELECT " + visitorColumns + " FROM visitors WHERE id = " + d.bind(1)
	q.insertVisitor = "INSERT INTO visitors (" + visitorColumns + ") VALUES (" + d.binds(1, 9) + ")"
	q.markEnriched = fmt.Sprintf(
		"UPDATE visitors SET is_enriched = %s, company_id = COALESCE(%s, company_id) WHERE id = %s",
		d.truth, d.bind(1), d.bind(2))

	n := len(companyColumns)
	sets := make([]string, 0, n)
	for _, c := range companyColumns {
		if c == "domain" {
			continue
		}
		sets = append(sets, c+" = "+d.mergeExpr(c))
	}
	q.upsertCompany = fmt.Sprintf(
		"INSERT INTO companies (%s, created_at, updated_at) VALUES (%s)\n"+
			"ON CONFLICT (domain) DO UPDATE SET %s, updated_at = excluded.updated_at\n"+
			"RETURNING id, %s, created_at, updated_at",
		strings.Join(companyColumns, ", "), d.binds(1, n+2),
		strings.Join(sets, ", "), strings.Join(companyColumns, ", "))

	cols := strings.Join(leadColumns, ", ")
	q.insertLead = fmt.Sprintf(
		"INSERT INTO leads (%s) VALUES (%s) ON CONFLICT (visitor_id) DO NOTHING RETURNING id",
		cols, d.binds(1, len(leadColumns)))
	q.leadByVisitor = "SELECT " + cols + " FROM leads WHERE visitor_id = " + d.bind(1)

	q.upsertResult = fmt.Sprintf(
		"INSERT INTO enrichment_data (id, lead_id, provider, confidence, data, created_at) VALUES (%s)\n"+
			"ON CONFLICT (lead_id, provider) DO UPDATE SET confidence = excluded.confidence, data = excluded.data",
		d.binds(1, 6))
	return q
}

// mergeExpr keeps the stored value wherever the incoming one is empty.
func (d dialect) mergeExpr(col string) string {
	switch col {
	case "employees", "founded_year":
		return fmt.Sprintf("CASE WHEN excluded.%[1]s > 0 THEN excluded.%[1]s ELSE companies.%[1]s END", col)
	case "technologies", "tags", "phone_numbers", "email_addresses":
		return fmt.Sprintf("CASE WHEN excluded.%[1]s = '[]' THEN companies.%[1]s ELSE excluded.%[1]s END", col)
	case "extra":
		return fmt.Sprintf(d.mergeJSON, "companies.extra", "excluded.extra")
	default:
		return fmt.Sprintf("COALESCE(NULLIF(excluded.%[1]s, ''), companies.%[1]s)", col)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func visitorArgs(v *model.Visitor) []any {
	return []any{v.ID, v.IPAddress, v.UserAgent, v.PageURL, v.SessionID, v.ClientID, v.CompanyID, v.IsEnriched, v.CreatedAt}
}

func scanVisitor(row scanner) (*model.Visitor, error) {
	var v model.Visitor
	err := row.Scan(&v.ID, &v.IPAddress, &v.UserAgent, &v.PageURL, &v.SessionID,
		&v.ClientID, &v.CompanyID, &v.IsEnriched, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func companyArgs(c *model.CompanyIdentity, now time.Time) ([]any, error) {
	tech, err := jsonList(c.Technologies)
	if err != nil {
		return nil, err
	}
	tags, err := jsonList(c.Tags)
	if err != nil {
		return nil, err
	}
	phones, err := jsonList(c.PhoneNumbers)
	if err != nil {
		return nil, err
	}
	emails, err := jsonList(c.EmailAddresses)
	if err != nil {
		return nil, err
	}
	extra := "{}"
	if len(c.Extra) > 0 {
		b, err := json.Marshal(c.Extra)
		if err != nil {
			return nil, eris.Wrap(err, "store: encode extra")
		}
		extra = string(b)
	}
	return []any{
		c.Domain, c.Name, c.LegalName, c.Industry, c.Sector, c.Size, c.Employees,
		c.Revenue, c.Location, c.City, c.State, c.Country, c.CountryCode,
		c.Description, c.Logo, c.LinkedIn, c.Twitter, c.Facebook, c.FoundedYear,
		tech, tags, phones, emails, extra, now, now,
	}, nil
}

func jsonList(v []string) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: encode list")
	}
	return string(b), nil
}

func scanCompany(row scanner) (*model.Company, error) {
	var (
		c                                 model.Company
		tech, tags, phones, emails, extra []byte
	)
	err := row.Scan(&c.ID,
		&c.Domain, &c.Name, &c.LegalName, &c.Industry, &c.Sector, &c.Size, &c.Employees,
		&c.Revenue, &c.Location, &c.City, &c.State, &c.Country, &c.CountryCode,
		&c.Description, &c.Logo, &c.LinkedIn, &c.Twitter, &c.Facebook, &c.FoundedYear,
		&tech, &tags, &phones, &emails, &extra, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{tech, &c.Technologies},
		{tags, &c.Tags},
		{phones, &c.PhoneNumbers},
		{emails, &c.EmailAddresses},
		{extra, &c.Extra},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, eris.Wrap(err, "store: decode company json")
		}
	}
	if len(c.Extra) == 0 {
		c.Extra = nil
	}
	if len(c.Technologies) == 0 {
		c.Technologies = nil
	}
	if len(c.Tags) == 0 {
		c.Tags = nil
	}
	if len(c.PhoneNumbers) == 0 {
		c.PhoneNumbers = nil
	}
	if len(c.EmailAddresses) == 0 {
		c.EmailAddresses = nil
	}
	return &c, nil
}

func leadArgs(l *model.Lead) []any {
	return []any{
		l.ID, l.ClientID, l.VisitorID, l.UserID, l.CompanyID,
		l.Email, l.FirstName, l.LastName, l.Company, l.Title, l.Phone,
		l.LinkedInURL, l.TwitterURL, l.FacebookURL, l.InstagramURL, l.Website,
		l.Location, l.Industry, l.CompanySize, l.Revenue, l.Description,
		l.Score, l.Source, l.CreatedAt,
	}
}

func scanLead(row scanner) (*model.Lead, error) {
	var l model.Lead
	err := row.Scan(
		&l.ID, &l.ClientID, &l.VisitorID, &l.UserID, &l.CompanyID,
		&l.Email, &l.FirstName, &l.LastName, &l.Company, &l.Title, &l.Phone,
		&l.LinkedInURL, &l.TwitterURL, &l.FacebookURL, &l.InstagramURL, &l.Website,
		&l.Location, &l.Industry, &l.CompanySize, &l.Revenue, &l.Description,
		&l.Score, &l.Source, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func resultData(r model.ProviderResult) (string, error) {
	if len(r.Data) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(r.Data)
	if err != nil {
		return "", eris.Wrapf(err, "store: encode %s result", r.Provider)
	}
	return string(b), nil
}

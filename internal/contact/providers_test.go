package contact

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
	"github.com/sells-group/visitor-enrich/pkg/apollo"
	"github.com/sells-group/visitor-enrich/pkg/clearbit"
	"github.com/sells-group/visitor-enrich/pkg/hunter"
)

type clearbitStub struct {
	c   *clearbit.Company
	err error
}

func (s clearbitStub) FindCompany(context.Context, string) (*clearbit.Company, error) { return s.c, s.err }

type apolloStub struct{ org *apollo.Organization }

func (s apolloStub) SearchOrganization(context.Context, string) (*apollo.Organization, error) {
	return s.org, nil
}

type hunterStub struct {
	ds     *hunter.DomainSearch
	domain string
}

func (s *hunterStub) DomainSearch(_ context.Context, domain string, _ int) (*hunter.DomainSearch, error) {
	s.domain = domain
	return s.ds, nil
}

var withDomain = provider.ContactRequest{IP: "1.2.3.4", Domain: "acme.com"}

func TestContactProviders_NotConfigured(t *testing.T) {
	for _, p := range []provider.ContactProvider{NewClearbit(nil), NewApollo(nil), NewHunter(nil)} {
		_, err := p.EnrichContact(context.Background(), withDomain)
		assert.ErrorIs(t, err, provider.ErrNotConfigured, p.Name())
	}
}

func TestContactProviders_AbstainWithoutDomain(t *testing.T) {
	providers := []provider.ContactProvider{
		NewClearbit(clearbitStub{c: &clearbit.Company{Name: "x"}}),
		NewApollo(apolloStub{org: &apollo.Organization{Name: "x"}}),
		NewHunter(&hunterStub{}),
	}
	for _, p := range providers {
		r, err := p.EnrichContact(context.Background(), provider.ContactRequest{IP: "1.2.3.4"})
		assert.NoError(t, err, p.Name())
		assert.Nil(t, r, p.Name())
	}
}

func TestClearbit_EnrichContact(t *testing.T) {
	p := NewClearbit(clearbitStub{c: &clearbit.Company{
		Name:        "Acme",
		Domain:      "acme.com",
		Description: "Widgets",
		Category:    clearbit.Category{Industry: "Manufacturing"},
		Metrics:     clearbit.Metrics{Employees: 42},
		Twitter:     clearbit.Handle{Handle: "acme"},
	}})

	r, err := p.EnrichContact(context.Background(), withDomain)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "clearbit", r.Provider)
	assert.Equal(t, 0.8, r.Confidence)
	assert.Equal(t, "Acme", r.Data[model.FieldCompany])
	assert.Equal(t, "acme.com", r.Data[model.FieldWebsite])
	assert.Equal(t, "11-50", r.Data[model.FieldCompanySize])
	assert.Equal(t, "https://twitter.com/acme", r.Data[model.FieldTwitterURL])
	assert.NotContains(t, r.Data, model.FieldFacebookURL)
	assert.NotContains(t, r.Data, model.FieldRevenue)
}

func TestClearbit_EnrichContactError(t *testing.T) {
	_, err := NewClearbit(clearbitStub{err: eris.New("clearbit: unexpected status 500")}).EnrichContact(context.Background(), withDomain)
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "clearbit", pe.Provider)
}

func TestApollo_EnrichContact(t *testing.T) {
	p := NewApollo(apolloStub{org: &apollo.Organization{
		Name:                  "Acme",
		PrimaryDomain:         "acme.com",
		WebsiteURL:            "https://acme.com",
		City:                  "Austin",
		EstimatedNumEmployees: 120,
	}})

	r, err := p.EnrichContact(context.Background(), withDomain)
	require.NoError(t, err)
	assert.Equal(t, 0.7, r.Confidence)
	assert.Equal(t, "Austin", r.Data[model.FieldLocation])
	assert.Equal(t, "120", r.Data[model.FieldCompanySize])

	r, err = NewApollo(apolloStub{}).EnrichContact(context.Background(), withDomain)
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestHunter_EnrichContact(t *testing.T) {
	stub := &hunterStub{ds: &hunter.DomainSearch{
		Organization: "Acme",
		Emails: []hunter.Email{
			{Value: "jane@acme.com", FirstName: "Jane", LastName: "Doe", Position: "CTO", Confidence: 92},
		},
	}}

	r, err := NewHunter(stub).EnrichContact(context.Background(), withDomain)
	require.NoError(t, err)
	assert.Equal(t, "acme.com", stub.domain)
	assert.InDelta(t, 0.92, r.Confidence, 1e-9)
	assert.Equal(t, "jane@acme.com", r.Data[model.FieldEmail])
	assert.Equal(t, "CTO", r.Data[model.FieldTitle])
	assert.Equal(t, "Acme", r.Data[model.FieldCompany])

	r, err = NewHunter(&hunterStub{ds: &hunter.DomainSearch{}}).EnrichContact(context.Background(), withDomain)
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestJoinNonEmpty(t *testing.T) {
	assert.Equal(t, "Austin, Texas", joinNonEmpty(", ", "Austin", "Texas"))
	assert.Equal(t, "Texas", joinNonEmpty(", ", "", "Texas"))
	assert.Empty(t, joinNonEmpty(", ", " ", ""))
}

package contact

import (
	"context"
	"strconv"
	"strings"

	"github.com/sells-group/visitor-enrich/internal/config"
	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
	"github.com/sells-group/visitor-enrich/pkg/apollo"
	"github.com/sells-group/visitor-enrich/pkg/clearbit"
	"github.com/sells-group/visitor-enrich/pkg/hunter"
)

// Fixed confidences for providers whose responses carry none.
const (
	clearbitConfidence = 0.8
	apolloConfidence   = 0.7
)

// Clearbit reports company-level contact fields from the Clearbit company
// record for the resolved domain.
type Clearbit struct {
	client clearbit.Client
}

// NewClearbit wraps a Clearbit client. A nil client means no credential.
func NewClearbit(c clearbit.Client) *Clearbit { return &Clearbit{client: c} }

// Name implements provider.Named.
func (p *Clearbit) Name() string { return config.ProviderClearbit }

// EnrichContact implements provider.ContactProvider.
func (p *Clearbit) EnrichContact(ctx context.Context, req provider.ContactRequest) (*model.ProviderResult, error) {
	if p.client == nil {
		return nil, provider.ErrNotConfigured
	}
	if req.Domain == "" {
		return nil, nil
	}
	c, err := p.client.FindCompany(ctx, req.Domain)
	if err != nil || c == nil {
		return nil, provider.Wrap(p.Name(), err)
	}

	data := compact(model.Fields{
		model.FieldCompany:     c.Name,
		model.FieldDomain:      c.Domain,
		model.FieldIndustry:    c.Category.Industry,
		model.FieldDescription: c.Description,
		model.FieldWebsite:     c.Domain,
		model.FieldLocation:    c.Location,
		model.FieldCompanySize: clearbit.FormatCompanySize(c.Metrics.Employees),
		model.FieldLinkedInURL: clearbit.SocialURL("https://linkedin.com/company/", c.LinkedIn.Handle),
		model.FieldTwitterURL:  clearbit.SocialURL("https://twitter.com/", c.Twitter.Handle),
		model.FieldFacebookURL: clearbit.SocialURL("https://facebook.com/", c.Facebook.Handle),
	})
	if r := c.Metrics.EstimatedAnnualRevenue; r != nil && *r > 0 {
		data[model.FieldRevenue] = clearbit.FormatRevenue(*r)
	}
	return result(p.Name(), clearbitConfidence, data), nil
}

// Apollo reports organization fields from Apollo's company search.
type Apollo struct {
	client apollo.Client
}

// NewApollo wraps an Apollo client. A nil client means no credential.
func NewApollo(c apollo.Client) *Apollo { return &Apollo{client: c} }

// Name implements provider.Named.
func (p *Apollo) Name() string { return config.ProviderApollo }

// EnrichContact implements provider.ContactProvider.
func (p *Apollo) EnrichContact(ctx context.Context, req provider.ContactRequest) (*model.ProviderResult, error) {
	if p.client == nil {
		return nil, provider.ErrNotConfigured
	}
	if req.Domain == "" {
		return nil, nil
	}
	org, err := p.client.SearchOrganization(ctx, req.Domain)
	if err != nil || org == nil {
		return nil, provider.Wrap(p.Name(), err)
	}

	data := compact(model.Fields{
		model.FieldCompany:     org.Name,
		model.FieldDomain:      org.PrimaryDomain,
		model.FieldIndustry:    org.Industry,
		model.FieldDescription: org.ShortDescription,
		model.FieldWebsite:     org.WebsiteURL,
		model.FieldLocation:    joinNonEmpty(", ", org.City, org.State),
		model.FieldPhone:       org.Phone,
		model.FieldLinkedInURL: org.LinkedInURL,
		model.FieldTwitterURL:  org.TwitterURL,
		model.FieldFacebookURL: org.FacebookURL,
	})
	if org.EstimatedNumEmployees > 0 {
		data[model.FieldCompanySize] = strconv.Itoa(org.EstimatedNumEmployees)
	}
	return result(p.Name(), apolloConfidence, data), nil
}

// Hunter reports the most likely person at the resolved domain.
type Hunter struct {
	client hunter.Client
}

// NewHunter wraps a Hunter client. A nil client means no credential.
func NewHunter(c hunter.Client) *Hunter { return &Hunter{client: c} }

// Name implements provider.Named.
func (p *Hunter) Name() string { return config.ProviderHunter }

// EnrichContact implements provider.ContactProvider. Confidence is Hunter's
// own email confidence scaled to [0,1].
func (p *Hunter) EnrichContact(ctx context.Context, req provider.ContactRequest) (*model.ProviderResult, error) {
	if p.client == nil {
		return nil, provider.ErrNotConfigured
	}
	if req.Domain == "" {
		return nil, nil
	}
	ds, err := p.client.DomainSearch(ctx, req.Domain, 1)
	if err != nil || ds == nil || len(ds.Emails) == 0 {
		return nil, provider.Wrap(p.Name(), err)
	}

	e := ds.Emails[0]
	data := compact(model.Fields{
		model.FieldEmail:       e.Value,
		model.FieldFirstName:   e.FirstName,
		model.FieldLastName:    e.LastName,
		model.FieldCompany:     ds.Organization,
		model.FieldTitle:       e.Position,
		model.FieldPhone:       e.PhoneNumber,
		model.FieldLinkedInURL: e.LinkedIn,
		model.FieldTwitterURL:  e.Twitter,
	})

	confidence := model.DefaultConfidence
	if e.Confidence > 0 {
		confidence = float64(e.Confidence) / 100
	}
	return result(p.Name(), confidence, data), nil
}

// compact drops keys whose values are null or blank strings.
func compact(f model.Fields) model.Fields {
	for k := range f {
		if !f.Has(k) {
			delete(f, k)
		}
	}
	return f
}

func result(name string, confidence float64, data model.Fields) *model.ProviderResult {
	if len(data) == 0 {
		return nil
	}
	return &model.ProviderResult{Provider: name, Confidence: confidence, Data: data}
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

var (
	_ provider.ContactProvider = (*Clearbit)(nil)
	_ provider.ContactProvider = (*Apollo)(nil)
	_ provider.ContactProvider = (*Hunter)(nil)
)

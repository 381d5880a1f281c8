package identity

import (
	"context"
	"strings"

	"github.com/sells-group/visitor-enrich/internal/config"
	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
	"github.com/sells-group/visitor-enrich/pkg/clearbit"
	"github.com/sells-group/visitor-enrich/pkg/enrichso"
	"github.com/sells-group/visitor-enrich/pkg/ipapi"
	"github.com/sells-group/visitor-enrich/pkg/ipdata"
	"github.com/sells-group/visitor-enrich/pkg/ipinfo"
)

// EnrichSo resolves identities through enrich.so. A nil client means the
// provider has no credential.
type EnrichSo struct {
	client enrichso.Client
}

// NewEnrichSo wraps an enrich.so client.
func NewEnrichSo(c enrichso.Client) *EnrichSo { return &EnrichSo{client: c} }

// Name implements provider.Named.
func (p *EnrichSo) Name() string { return config.ProviderEnrichSo }

// ResolveIdentity implements provider.IdentityProvider.
func (p *EnrichSo) ResolveIdentity(ctx context.Context, ip string) (*model.CompanyIdentity, error) {
	if p.client == nil {
		return nil, provider.ErrNotConfigured
	}
	c, err := p.client.LookupIP(ctx, ip)
	if err != nil || c == nil {
		return nil, provider.Wrap(p.Name(), err)
	}

	id := &model.CompanyIdentity{
		Domain:         c.Domain,
		Name:           c.Name,
		LegalName:      c.LegalName,
		Industry:       c.Category.Industry,
		Sector:         c.Category.Sector,
		Size:           c.Metrics.EmployeesRange,
		Employees:      c.Metrics.Employees,
		Revenue:        c.Metrics.EstimatedAnnualRevenue,
		Location:       c.Location,
		City:           c.Geo.City,
		State:          c.Geo.State,
		Country:        c.Geo.Country,
		CountryCode:    c.Geo.CountryCode,
		Description:    c.Description,
		Logo:           c.Logo,
		LinkedIn:       c.LinkedIn.Handle,
		Twitter:        c.Twitter.Handle,
		Facebook:       c.Facebook.Handle,
		FoundedYear:    c.FoundedYear,
		Technologies:   c.Tech,
		Tags:           c.Tags,
		PhoneNumbers:   c.Site.PhoneNumbers,
		EmailAddresses: c.Site.EmailAddresses,
		Source:         p.Name(),
	}

	extra := map[string]any{
		"industry_group": c.Category.IndustryGroup,
		"sub_industry":   c.Category.SubIndustry,
		"street_address": c.Geo.StreetAddress,
		"postal_code":    c.Geo.PostalCode,
		"state_code":     c.Geo.StateCode,
		"crunchbase":     c.Crunchbase.Handle,
		"time_zone":      c.TimeZone,
		"type":           c.Type,
		"duns":           c.Identifiers.DUNS,
		"ein":            c.Identifiers.EIN,
	}
	for k, v := range extra {
		if s, _ := v.(string); s == "" {
			delete(extra, k)
		}
	}
	if len(c.DomainAliases) > 0 {
		extra["domain_aliases"] = c.DomainAliases
	}
	if c.Geo.Lat != 0 || c.Geo.Lng != 0 {
		extra["lat"] = c.Geo.Lat
		extra["lng"] = c.Geo.Lng
	}
	if c.Metrics.Raised > 0 {
		extra["raised"] = c.Metrics.Raised
	}
	if c.Metrics.AlexaGlobalRank > 0 {
		extra["alexa_global_rank"] = c.Metrics.AlexaGlobalRank
	}
	if len(extra) > 0 {
		id.Extra = extra
	}
	return id, nil
}

// IPData resolves identities from the ASN record returned by ipdata.co.
// ISP and hosting ASNs name the operator, not the visitor, and are ignored.
type IPData struct {
	client ipdata.Client
}

// NewIPData wraps an ipdata client.
func NewIPData(c ipdata.Client) *IPData { return &IPData{client: c} }

// Name implements provider.Named.
func (p *IPData) Name() string { return config.ProviderIPData }

// ResolveIdentity implements provider.IdentityProvider.
func (p *IPData) ResolveIdentity(ctx context.Context, ip string) (*model.CompanyIdentity, error) {
	if p.client == nil {
		return nil, provider.ErrNotConfigured
	}
	r, err := p.client.Lookup(ctx, ip)
	if err != nil {
		return nil, provider.Wrap(p.Name(), err)
	}
	if r == nil || r.ASN == nil || carrierASNTypes[strings.ToLower(r.ASN.Type)] || LikelyCarrier(r.ASN.Name) {
		return nil, nil
	}
	return &model.CompanyIdentity{
		Domain:      r.ASN.Domain,
		Name:        r.ASN.Name,
		City:        r.City,
		Country:     r.CountryName,
		CountryCode: r.CountryCode,
		Location:    joinLocation(r.City, r.CountryName),
		Source:      p.Name(),
	}, nil
}

// IPAPI resolves identities from ip-api.com. The service needs no
// credential, so it is always configured; its org strings are filtered
// through LikelyBusiness.
type IPAPI struct {
	client ipapi.Client
}

// NewIPAPI wraps an ip-api client.
func NewIPAPI(c ipapi.Client) *IPAPI { return &IPAPI{client: c} }

// Name implements provider.Named.
func (p *IPAPI) Name() string { return config.ProviderIPAPI }

// ResolveIdentity implements provider.IdentityProvider.
func (p *IPAPI) ResolveIdentity(ctx context.Context, ip string) (*model.CompanyIdentity, error) {
	if p.client == nil {
		return nil, provider.ErrNotConfigured
	}
	r, err := p.client.Lookup(ctx, ip)
	if err != nil {
		return nil, provider.Wrap(p.Name(), err)
	}
	if !r.OK() || !LikelyBusiness(r.ISP, r.Org) {
		return nil, nil
	}
	return &model.CompanyIdentity{
		Name:        StripASN(r.Org),
		City:        r.City,
		State:       r.RegionName,
		Country:     r.Country,
		CountryCode: r.CountryCode,
		Location:    joinLocation(r.City, r.Country),
		Source:      p.Name(),
	}, nil
}

// IPInfo resolves identities from the org field of ipinfo.io. The token is
// optional, so the provider is always configured. The org is the network
// operator's name, so carrier names are rejected.
type IPInfo struct {
	client ipinfo.Client
}

// NewIPInfo wraps an ipinfo client.
func NewIPInfo(c ipinfo.Client) *IPInfo { return &IPInfo{client: c} }

// Name implements provider.Named.
func (p *IPInfo) Name() string { return config.ProviderIPInfo }

// ResolveIdentity implements provider.IdentityProvider.
func (p *IPInfo) ResolveIdentity(ctx context.Context, ip string) (*model.CompanyIdentity, error) {
	if p.client == nil {
		return nil, provider.ErrNotConfigured
	}
	r, err := p.client.Lookup(ctx, ip)
	if err != nil {
		return nil, provider.Wrap(p.Name(), err)
	}
	if r == nil || r.Bogon {
		return nil, nil
	}
	name := StripASN(r.Org)
	if name == "" || LikelyCarrier(name) {
		return nil, nil
	}
	return &model.CompanyIdentity{
		Name:     name,
		City:     r.City,
		State:    r.Region,
		Country:  r.Country,
		Location: joinLocation(r.City, r.Country),
		Source:   p.Name(),
	}, nil
}

// Clearbit deepens a resolved domain through the Clearbit company API.
type Clearbit struct {
	client clearbit.Client
}

// NewClearbit wraps a Clearbit client.
func NewClearbit(c clearbit.Client) *Clearbit { return &Clearbit{client: c} }

// Name implements provider.Named.
func (p *Clearbit) Name() string { return config.ProviderClearbit }

// FindCompany implements provider.CompanyProvider.
func (p *Clearbit) FindCompany(ctx context.Context, domain string) (*model.CompanyIdentity, error) {
	if p.client == nil {
		return nil, provider.ErrNotConfigured
	}
	c, err := p.client.FindCompany(ctx, domain)
	if err != nil || c == nil {
		return nil, provider.Wrap(p.Name(), err)
	}

	id := &model.CompanyIdentity{
		Domain:       c.Domain,
		Name:         c.Name,
		LegalName:    c.LegalName,
		Industry:     c.Category.Industry,
		Sector:       c.Category.Sector,
		Size:         clearbit.FormatCompanySize(c.Metrics.Employees),
		Employees:    c.Metrics.Employees,
		Location:     c.Location,
		City:         c.Geo.City,
		State:        c.Geo.State,
		Country:      c.Geo.Country,
		CountryCode:  c.Geo.CountryCode,
		Description:  c.Description,
		Logo:         c.Logo,
		LinkedIn:     clearbit.SocialURL("https://linkedin.com/company/", c.LinkedIn.Handle),
		Twitter:      clearbit.SocialURL("https://twitter.com/", c.Twitter.Handle),
		Facebook:     clearbit.SocialURL("https://facebook.com/", c.Facebook.Handle),
		FoundedYear:  c.FoundedYear,
		Technologies: c.Tech,
		Tags:         c.Tags,
		Source:       p.Name(),
	}
	if r := c.Metrics.EstimatedAnnualRevenue; r != nil && *r > 0 {
		id.Revenue = clearbit.FormatRevenue(*r)
	}
	return id, nil
}

var (
	_ provider.IdentityProvider = (*EnrichSo)(nil)
	_ provider.IdentityProvider = (*IPData)(nil)
	_ provider.IdentityProvider = (*IPAPI)(nil)
	_ provider.IdentityProvider = (*IPInfo)(nil)
	_ provider.CompanyProvider  = (*Clearbit)(nil)
)

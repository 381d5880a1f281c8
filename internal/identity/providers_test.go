package identity

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
	"github.com/sells-group/visitor-enrich/pkg/clearbit"
	"github.com/sells-group/visitor-enrich/pkg/enrichso"
	"github.com/sells-group/visitor-enrich/pkg/ipapi"
	"github.com/sells-group/visitor-enrich/pkg/ipdata"
	"github.com/sells-group/visitor-enrich/pkg/ipinfo"
)

type enrichsoStub struct {
	c   *enrichso.Company
	err error
}

func (s enrichsoStub) LookupIP(context.Context, string) (*enrichso.Company, error) { return s.c, s.err }

type ipdataStub struct{ r *ipdata.Response }

func (s ipdataStub) Lookup(context.Context, string) (*ipdata.Response, error) { return s.r, nil }

type ipapiStub struct{ r *ipapi.Response }

func (s ipapiStub) Lookup(context.Context, string) (*ipapi.Response, error) { return s.r, nil }

type ipinfoStub struct{ r *ipinfo.Response }

func (s ipinfoStub) Lookup(context.Context, string) (*ipinfo.Response, error) { return s.r, nil }

type clearbitStub struct{ c *clearbit.Company }

func (s clearbitStub) FindCompany(context.Context, string) (*clearbit.Company, error) { return s.c, nil }

func TestProviders_NotConfigured(t *testing.T) {
	ctx := context.Background()
	for _, p := range []provider.IdentityProvider{NewEnrichSo(nil), NewIPData(nil), NewIPAPI(nil), NewIPInfo(nil)} {
		_, err := p.ResolveIdentity(ctx, "1.2.3.4")
		assert.ErrorIs(t, err, provider.ErrNotConfigured, p.Name())
	}
	_, err := NewClearbit(nil).FindCompany(ctx, "acme.com")
	assert.ErrorIs(t, err, provider.ErrNotConfigured)
}

func TestEnrichSo_Maps(t *testing.T) {
	c := &enrichso.Company{
		Name:          "Acme",
		Domain:        "acme.com",
		DomainAliases: []string{"acme.io"},
		Category:      enrichso.Category{Industry: "Software", SubIndustry: "SaaS"},
		Geo:           enrichso.Geo{City: "Austin", Country: "United States", Lat: 30.2, Lng: -97.7},
		Metrics:       enrichso.Metrics{Employees: 120, EmployeesRange: "51-200"},
		Identifiers:   enrichso.Identifiers{EIN: "12-3456789"},
	}

	id, err := NewEnrichSo(enrichsoStub{c: c}).ResolveIdentity(context.Background(), "1.2.3.4")

	require.NoError(t, err)
	assert.Equal(t, "acme.com", id.Domain)
	assert.Equal(t, "Software", id.Industry)
	assert.Equal(t, "51-200", id.Size)
	assert.Equal(t, 120, id.Employees)
	assert.Equal(t, "enrichso", id.Source)
	assert.Equal(t, "SaaS", id.Extra["sub_industry"])
	assert.Equal(t, "12-3456789", id.Extra["ein"])
	assert.Equal(t, []string{"acme.io"}, id.Extra["domain_aliases"])
	assert.NotContains(t, id.Extra, "duns")
}

func TestEnrichSo_NoMatchAndError(t *testing.T) {
	id, err := NewEnrichSo(enrichsoStub{}).ResolveIdentity(context.Background(), "1.2.3.4")
	assert.NoError(t, err)
	assert.Nil(t, id)

	_, err = NewEnrichSo(enrichsoStub{err: eris.New("enrichso: unexpected status 500")}).ResolveIdentity(context.Background(), "1.2.3.4")
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "enrichso", pe.Provider)
}

func TestIPData_UsesASN(t *testing.T) {
	p := NewIPData(ipdataStub{r: &ipdata.Response{
		City:        "Denver",
		CountryName: "United States",
		ASN:         &ipdata.ASN{Name: "Acme Corp", Domain: "acme.com"},
	}})

	id, err := p.ResolveIdentity(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", id.Domain)
	assert.Equal(t, "Acme Corp", id.Name)
	assert.Equal(t, "Denver, United States", id.Location)

	id, err = NewIPData(ipdataStub{r: &ipdata.Response{City: "Denver"}}).ResolveIdentity(context.Background(), "1.2.3.4")
	assert.NoError(t, err)
	assert.Nil(t, id)
}

func TestIPData_IgnoresCarrierASN(t *testing.T) {
	tests := []struct {
		name string
		asn  ipdata.ASN
	}{
		{"isp type", ipdata.ASN{Name: "Comcast Cable Communications, LLC", Domain: "comcast.net", Type: "isp"}},
		{"hosting type", ipdata.ASN{Name: "Amazon.com, Inc.", Domain: "amazon.com", Type: "hosting"}},
		{"untyped carrier name", ipdata.ASN{Name: "Verizon Business", Domain: "verizon.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asn := tt.asn
			id, err := NewIPData(ipdataStub{r: &ipdata.Response{City: "Denver", ASN: &asn}}).
				ResolveIdentity(context.Background(), "73.1.2.3")
			require.NoError(t, err)
			assert.Nil(t, id)
		})
	}

	id, err := NewIPData(ipdataStub{r: &ipdata.Response{ASN: &ipdata.ASN{Name: "Initech", Domain: "initech.com", Type: "business"}}}).
		ResolveIdentity(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "initech.com", id.Domain)
}

func TestIPAPI_Heuristic(t *testing.T) {
	tests := []struct {
		name     string
		resp     *ipapi.Response
		wantName string
	}{
		{"business", &ipapi.Response{Status: "success", ISP: "Level 3", Org: "Initech LLC", City: "Dallas", Country: "United States"}, "Initech LLC"},
		{"residential isp", &ipapi.Response{Status: "success", ISP: "Comcast Residential", Org: "Initech"}, ""},
		{"mobile isp", &ipapi.Response{Status: "success", ISP: "T-MOBILE USA", Org: "Initech"}, ""},
		{"org equals isp", &ipapi.Response{Status: "success", ISP: "Comcast Cable", Org: "COMCAST CABLE"}, ""},
		{"no org", &ipapi.Response{Status: "success", ISP: "Level 3"}, ""},
		{"failed lookup", &ipapi.Response{Status: "fail", Org: "Initech"}, ""},
		{"asn prefix stripped", &ipapi.Response{Status: "success", ISP: "Cogent", Org: "AS1234 Initech"}, "Initech"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewIPAPI(ipapiStub{r: tt.resp}).ResolveIdentity(context.Background(), "1.2.3.4")
			require.NoError(t, err)
			if tt.wantName == "" {
				assert.Nil(t, id)
				return
			}
			require.NotNil(t, id)
			assert.Equal(t, tt.wantName, id.Name)
			assert.Empty(t, id.Domain)
		})
	}
}

func TestIPInfo_StripsASN(t *testing.T) {
	id, err := NewIPInfo(ipinfoStub{r: &ipinfo.Response{Org: "AS15169 Google LLC", City: "Mountain View", Country: "US"}}).
		ResolveIdentity(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "Google LLC", id.Name)
	assert.Equal(t, "Mountain View, US", id.Location)

	id, err = NewIPInfo(ipinfoStub{r: &ipinfo.Response{Country: "US"}}).ResolveIdentity(context.Background(), "8.8.8.8")
	assert.NoError(t, err)
	assert.Nil(t, id)

	id, err = NewIPInfo(ipinfoStub{r: &ipinfo.Response{Org: "AS1 x", Bogon: true}}).ResolveIdentity(context.Background(), "10.0.0.1")
	assert.NoError(t, err)
	assert.Nil(t, id)
}

func TestIPInfo_RejectsCarrierOrg(t *testing.T) {
	for _, org := range []string{
		"AS7922 Comcast Cable Communications, LLC",
		"AS21928 T-Mobile USA, Inc.",
		"AS701 Verizon Business",
	} {
		id, err := NewIPInfo(ipinfoStub{r: &ipinfo.Response{Org: org, Country: "US"}}).
			ResolveIdentity(context.Background(), "73.1.2.3")
		require.NoError(t, err)
		assert.Nil(t, id, org)
	}
}

// A connection ip-api rejects must not resolve through a later source that
// only sees the same carrier.
func TestResolver_CarrierRejectedAcrossFallbacks(t *testing.T) {
	const carrier = "Comcast Cable Communications, LLC"
	r := NewResolver([]provider.IdentityProvider{
		NewIPData(ipdataStub{r: &ipdata.Response{ASN: &ipdata.ASN{Name: carrier, Domain: "comcast.net", Type: "isp"}}}),
		NewIPAPI(ipapiStub{r: &ipapi.Response{Status: "success", ISP: carrier, Org: carrier}}),
		NewIPInfo(ipinfoStub{r: &ipinfo.Response{Org: "AS7922 " + carrier}}),
	})

	assert.Nil(t, r.Resolve(context.Background(), "73.1.2.3", ""))
}

func TestClearbit_FormatsDeepFields(t *testing.T) {
	rev := 2_500_000_000.0
	p := NewClearbit(clearbitStub{c: &clearbit.Company{
		Domain:   "acme.com",
		Category: clearbit.Category{Industry: "SaaS"},
		Metrics:  clearbit.Metrics{Employees: 750, EstimatedAnnualRevenue: &rev},
		LinkedIn: clearbit.Handle{Handle: "acme"},
		Twitter:  clearbit.Handle{Handle: "acmehq"},
	}})

	id, err := p.FindCompany(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "SaaS", id.Industry)
	assert.Equal(t, "501-1000", id.Size)
	assert.Equal(t, "$2.5B", id.Revenue)
	assert.Equal(t, "https://linkedin.com/company/acme", id.LinkedIn)
	assert.Equal(t, "https://twitter.com/acmehq", id.Twitter)
	assert.Empty(t, id.Facebook)

	id, err = NewClearbit(clearbitStub{}).FindCompany(context.Background(), "acme.com")
	assert.NoError(t, err)
	assert.Nil(t, id)
}

func TestLikelyBusiness(t *testing.T) {
	assert.True(t, LikelyBusiness("Level 3", "Initech"))
	assert.False(t, LikelyBusiness("Verizon Mobile", "Initech"))
	assert.False(t, LikelyBusiness("Spectrum RESIDENTIAL", "Initech"))
	assert.False(t, LikelyBusiness("Straße Net", "STRASSE NET"))
	assert.False(t, LikelyBusiness("Level 3", "  "))
}

func TestLikelyCarrier(t *testing.T) {
	assert.True(t, LikelyCarrier("Comcast Cable Communications, LLC"))
	assert.True(t, LikelyCarrier("T-MOBILE USA"))
	assert.True(t, LikelyCarrier("AT&T Services, Inc."))
	assert.False(t, LikelyCarrier("Initech LLC"))
	assert.False(t, LikelyCarrier("Google LLC"))
	assert.False(t, LikelyCarrier("Cablevue Analytics"))
	assert.False(t, LikelyBusiness("Level 3", "AS7922 Comcast Cable"))
}

func TestStripASN(t *testing.T) {
	assert.Equal(t, "Google LLC", StripASN("AS15169 Google LLC"))
	assert.Equal(t, "Google LLC", StripASN("Google LLC"))
	assert.Equal(t, "ASUS Computer", StripASN("ASUS Computer"))
}

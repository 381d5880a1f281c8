package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"acme.com", "acme.com"},
		{"Acme.COM", "acme.com"},
		{" www.acme.com. ", "acme.com"},
		{"https://www.Acme.com/about?x=1", "acme.com"},
		{"acme.com:443", "acme.com"},
		{"shop.acme.co.uk", "shop.acme.co.uk"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDomain(tt.in), tt.in)
	}
}

func TestCompanyIdentity_IsEmpty(t *testing.T) {
	var nilIdent *CompanyIdentity
	assert.True(t, nilIdent.IsEmpty())
	assert.True(t, (&CompanyIdentity{Industry: "SaaS"}).IsEmpty())
	assert.False(t, (&CompanyIdentity{Domain: "acme.com"}).IsEmpty())
	assert.False(t, (&CompanyIdentity{Name: "Acme"}).IsEmpty())
}

func TestCompanyIdentity_Overlay_DeeperWinsOnOverlap(t *testing.T) {
	base := &CompanyIdentity{
		Domain:   "acme.com",
		Name:     "Acme",
		Industry: "Software",
		City:     "Austin",
		Tags:     []string{"b2b"},
		Extra:    map[string]any{"duns": "123"},
	}
	deeper := &CompanyIdentity{
		Name:      "Acme Corp",
		Industry:  "SaaS",
		Employees: 120,
		Extra:     map[string]any{"crunchbase": "acme", "ignored": nil},
	}

	base.Overlay(deeper)

	assert.Equal(t, "acme.com", base.Domain)
	assert.Equal(t, "Acme Corp", base.Name)
	assert.Equal(t, "SaaS", base.Industry)
	assert.Equal(t, "Austin", base.City, "fields absent from deeper source are kept")
	assert.Equal(t, 120, base.Employees)
	assert.Equal(t, []string{"b2b"}, base.Tags)
	assert.Equal(t, map[string]any{"duns": "123", "crunchbase": "acme"}, base.Extra)
}

func TestCompanyIdentity_Overlay_Nil(t *testing.T) {
	base := &CompanyIdentity{Domain: "acme.com"}
	base.Overlay(nil)
	assert.Equal(t, "acme.com", base.Domain)
}

func TestFields_Has(t *testing.T) {
	f := Fields{
		"email":   "a@acme.com",
		"blank":   "   ",
		"nil":     nil,
		"size":    250,
		"missing": "",
	}
	assert.True(t, f.Has("email"))
	assert.True(t, f.Has("size"))
	assert.False(t, f.Has("blank"))
	assert.False(t, f.Has("nil"))
	assert.False(t, f.Has("missing"))
	assert.False(t, f.Has("absent"))

	assert.Equal(t, "250", f.String("size"))
	assert.Equal(t, "", f.String("blank"))
}

func TestProviderResult_Empty(t *testing.T) {
	assert.True(t, ProviderResult{Provider: "hunter"}.Empty())
	assert.False(t, ProviderResult{Provider: "hunter", Data: Fields{"email": "x"}}.Empty())
}

func TestJobState_Terminal(t *testing.T) {
	assert.True(t, JobStateDone.Terminal())
	assert.True(t, JobStateFailed.Terminal())
	assert.False(t, JobStateMerging.Terminal())
}

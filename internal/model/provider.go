package model

import (
	"fmt"
	"strings"
)

// DefaultConfidence is assigned to provider results that omit a confidence.
const DefaultConfidence = 0.5

// Canonical contact field keys shared by providers, merge, and scoring.
const (
	FieldEmail        = "email"
	FieldFirstName    = "first_name"
	FieldLastName     = "last_name"
	FieldCompany      = "company"
	FieldTitle        = "title"
	FieldPhone        = "phone"
	FieldLinkedInURL  = "linkedin_url"
	FieldTwitterURL   = "twitter_url"
	FieldFacebookURL  = "facebook_url"
	FieldInstagramURL = "instagram_url"
	FieldWebsite      = "website"
	FieldLocation     = "location"
	FieldIndustry     = "industry"
	FieldCompanySize  = "company_size"
	FieldRevenue      = "revenue"
	FieldDescription  = "description"
	FieldDomain       = "domain"
)

// Fields is an open key/value payload returned by a contact provider.
type Fields map[string]any

// Has reports whether key holds a non-null value. Empty strings count as null.
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns the value at key rendered as a string, or "".
func (f Fields) String(key string) string {
	if !f.Has(key) {
		return ""
	}
	switch v := f[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// ProviderResult is one contact provider's answer for a visitor.
type ProviderResult struct {
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
	Data       Fields  `json:"data"`
}

// Empty reports whether the result carries no payload.
func (r ProviderResult) Empty() bool {
	return len(r.Data) == 0
}

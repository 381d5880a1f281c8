package model

import (
	"strings"
	"time"
)

// CompanyIdentity is an organization resolved from a visitor's IP address.
// Domain and Name are the identifying fields; everything else is descriptive.
// Extra carries provider-specific attributes that have no typed home.
type CompanyIdentity struct {
	Domain         string         `json:"domain,omitempty"`
	Name           string         `json:"name,omitempty"`
	LegalName      string         `json:"legal_name,omitempty"`
	Industry       string         `json:"industry,omitempty"`
	Sector         string         `json:"sector,omitempty"`
	Size           string         `json:"size,omitempty"`
	Employees      int            `json:"employees,omitempty"`
	Revenue        string         `json:"revenue,omitempty"`
	Location       string         `json:"location,omitempty"`
	City           string         `json:"city,omitempty"`
	State          string         `json:"state,omitempty"`
	Country        string         `json:"country,omitempty"`
	CountryCode    string         `json:"country_code,omitempty"`
	Description    string         `json:"description,omitempty"`
	Logo           string         `json:"logo,omitempty"`
	LinkedIn       string         `json:"linkedin,omitempty"`
	Twitter        string         `json:"twitter,omitempty"`
	Facebook       string         `json:"facebook,omitempty"`
	FoundedYear    int            `json:"founded_year,omitempty"`
	Technologies   []string       `json:"technologies,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	PhoneNumbers   []string       `json:"phone_numbers,omitempty"`
	EmailAddresses []string       `json:"email_addresses,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`

	// Source is the provider that produced the identity. Not persisted.
	Source string `json:"-"`
}

// NormalizeDomain reduces a provider-reported domain or URL to its bare
// lower-case host: no scheme, path, port, "www." prefix or trailing dot.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// IsEmpty reports whether the identity carries neither a domain nor a name.
func (c *CompanyIdentity) IsEmpty() bool {
	return c == nil || (c.Domain == "" && c.Name == "")
}

// Overlay copies every non-empty field of deeper onto c. Fields that deeper
// leaves empty keep their current value.
func (c *CompanyIdentity) Overlay(deeper *CompanyIdentity) {
	if deeper == nil {
		return
	}
	overlayString(&c.Domain, deeper.Domain)
	overlayString(&c.Name, deeper.Name)
	overlayString(&c.LegalName, deeper.LegalName)
	overlayString(&c.Industry, deeper.Industry)
	overlayString(&c.Sector, deeper.Sector)
	overlayString(&c.Size, deeper.Size)
	overlayString(&c.Revenue, deeper.Revenue)
	overlayString(&c.Location, deeper.Location)
	overlayString(&c.City, deeper.City)
	overlayString(&c.State, deeper.State)
	overlayString(&c.Country, deeper.Country)
	overlayString(&c.CountryCode, deeper.CountryCode)
	overlayString(&c.Description, deeper.Description)
	overlayString(&c.Logo, deeper.Logo)
	overlayString(&c.LinkedIn, deeper.LinkedIn)
	overlayString(&c.Twitter, deeper.Twitter)
	overlayString(&c.Facebook, deeper.Facebook)
	if deeper.Employees > 0 {
		c.Employees = deeper.Employees
	}
	if deeper.FoundedYear > 0 {
		c.FoundedYear = deeper.FoundedYear
	}
	overlaySlice(&c.Technologies, deeper.Technologies)
	overlaySlice(&c.Tags, deeper.Tags)
	overlaySlice(&c.PhoneNumbers, deeper.PhoneNumbers)
	overlaySlice(&c.EmailAddresses, deeper.EmailAddresses)
	for k, v := range deeper.Extra {
		if v == nil {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any, len(deeper.Extra))
		}
		c.Extra[k] = v
	}
}

func overlayString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func overlaySlice(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

// Company is a persisted CompanyIdentity. Domain is unique.
type Company struct {
	ID int64 `json:"id"`
	CompanyIdentity
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

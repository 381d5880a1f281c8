// Package enrichso provides a client for the enrich.so IP-to-company API.
package enrichso

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visitor-enrich/internal/resilience"
)

// Client defines the enrich.so operations.
type Client interface {
	// LookupIP returns the company that owns ip, or nil when there is no match.
	LookupIP(ctx context.Context, ip string) (*Company, error)
}

// Handle is a social profile handle.
type Handle struct {
	Handle string `json:"handle"`
}

// Category groups industry classification.
type Category struct {
	Sector        string `json:"sector"`
	IndustryGroup string `json:"industryGroup"`
	Industry      string `json:"industry"`
	SubIndustry   string `json:"subIndustry"`
}

// Geo is a company's headquarters location.
type Geo struct {
	StreetAddress string  `json:"streetAddress"`
	City          string  `json:"city"`
	PostalCode    string  `json:"postalCode"`
	State         string  `json:"state"`
	StateCode     string  `json:"stateCode"`
	Country       string  `json:"country"`
	CountryCode   string  `json:"countryCode"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
}

// Metrics holds size and revenue estimates.
type Metrics struct {
	Employees              int    `json:"employees"`
	EmployeesRange         string `json:"employeesRange"`
	EstimatedAnnualRevenue string `json:"estimatedAnnualRevenue"`
	AlexaGlobalRank        int    `json:"alexaGlobalRank"`
	Raised                 int64  `json:"raised"`
}

// Site holds contact details scraped from the company site.
type Site struct {
	PhoneNumbers   []string `json:"phoneNumbers"`
	EmailAddresses []string `json:"emailAddresses"`
}

// Identifiers holds registry identifiers.
type Identifiers struct {
	DUNS string `json:"duns"`
	EIN  string `json:"ein"`
}

// Company is the company record returned for an IP.
type Company struct {
	Name          string      `json:"name"`
	LegalName     string      `json:"legalName"`
	Domain        string      `json:"domain"`
	DomainAliases []string    `json:"domainAliases"`
	Description   string      `json:"description"`
	Logo          string      `json:"logo"`
	Location      string      `json:"location"`
	Type          string      `json:"type"`
	TimeZone      string      `json:"timeZone"`
	FoundedYear   int         `json:"foundedYear"`
	Category      Category    `json:"category"`
	Geo           Geo         `json:"geo"`
	Metrics       Metrics     `json:"metrics"`
	Site          Site        `json:"site"`
	Identifiers   Identifiers `json:"identifiers"`
	LinkedIn      Handle      `json:"linkedin"`
	Twitter       Handle      `json:"twitter"`
	Facebook      Handle      `json:"facebook"`
	Crunchbase    Handle      `json:"crunchbase"`
	Tech          []string    `json:"tech"`
	Tags          []string    `json:"tags"`
}

type lookupResponse struct {
	Success bool     `json:"success"`
	Data    *Company `json:"data"`
}

// Option configures the enrich.so client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL. An empty value keeps the default.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new enrich.so client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.enrich.so",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) LookupIP(ctx context.Context, ip string) (*Company, error) {
	reqURL := c.baseURL + "/v1/api/ip-to-company-lookup?" + url.Values{"ip": {ip}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "enrichso: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "enrichso: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "enrichso: read response body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(eris.Errorf("enrichso: unexpected status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}

	var result lookupResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "enrichso: unmarshal response")
	}
	if !result.Success || result.Data == nil {
		return nil, nil
	}
	return result.Data, nil
}

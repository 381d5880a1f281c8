// Package clearbit provides a client for the Clearbit company API.
package clearbit

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

// Client defines the Clearbit operations.
type Client interface {
	// FindCompany returns the company record for domain, or nil when Clearbit
	// has none yet.
	FindCompany(ctx context.Context, domain string) (*Company, error)
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
	City        string `json:"city"`
	State       string `json:"state"`
	StateCode   string `json:"stateCode"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

// Metrics holds size and revenue estimates.
type Metrics struct {
	Employees              int      `json:"employees"`
	EmployeesRange         string   `json:"employeesRange"`
	EstimatedAnnualRevenue *float64 `json:"estimatedAnnualRevenue"`
}

// Company is a Clearbit company record.
type Company struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	LegalName   string   `json:"legalName"`
	Domain      string   `json:"domain"`
	Description string   `json:"description"`
	Logo        string   `json:"logo"`
	Location    string   `json:"location"`
	FoundedYear int      `json:"foundedYear"`
	Category    Category `json:"category"`
	Geo         Geo      `json:"geo"`
	Metrics     Metrics  `json:"metrics"`
	LinkedIn    Handle   `json:"linkedin"`
	Twitter     Handle   `json:"twitter"`
	Facebook    Handle   `json:"facebook"`
	Tech        []string `json:"tech"`
	Tags        []string `json:"tags"`
}

// Option configures the Clearbit client.
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

// NewClient creates a new Clearbit client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://company.clearbit.com",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) FindCompany(ctx context.Context, domain string) (*Company, error) {
	reqURL := c.baseURL + "/v2/companies/find?" + url.Values{"domain": {domain}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "clearbit: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "clearbit: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "clearbit: read response body")
	}

	// 202 means the lookup was queued; 404 means no record.
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusNotFound:
		return nil, nil
	default:
		return nil, resilience.StatusError(eris.Errorf("clearbit: unexpected status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}

	var result Company
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "clearbit: unmarshal response")
	}
	return &result, nil
}

// Package apollo provides a client for the Apollo.io organization search API.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visitor-enrich/internal/resilience"
)

// Client defines the Apollo operations.
type Client interface {
	// SearchOrganization returns the best organization match for domain, or
	// nil when there is none.
	SearchOrganization(ctx context.Context, domain string) (*Organization, error)
}

// Organization is an Apollo organization record.
type Organization struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	PrimaryDomain         string `json:"primary_domain"`
	WebsiteURL            string `json:"website_url"`
	LinkedInURL           string `json:"linkedin_url"`
	TwitterURL            string `json:"twitter_url"`
	FacebookURL           string `json:"facebook_url"`
	Industry              string `json:"industry"`
	ShortDescription      string `json:"short_description"`
	City                  string `json:"city"`
	State                 string `json:"state"`
	Country               string `json:"country"`
	Phone                 string `json:"phone"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
}

type searchRequest struct {
	Domains string `json:"q_organization_domains"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

type searchResponse struct {
	Organizations []Organization `json:"organizations"`
}

// Option configures the Apollo client.
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

// NewClient creates a new Apollo client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.apollo.io",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchOrganization(ctx context.Context, domain string) (*Organization, error) {
	payload, err := json.Marshal(searchRequest{Domains: domain, Page: 1, PerPage: 1})
	if err != nil {
		return nil, eris.Wrap(err, "apollo: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/mixed_companies/search", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(eris.Errorf("apollo: unexpected status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal response")
	}
	if len(result.Organizations) == 0 {
		return nil, nil
	}
	return &result.Organizations[0], nil
}

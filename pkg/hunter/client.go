// Package hunter provides a client for the Hunter.io domain search API.
package hunter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visitor-enrich/internal/resilience"
)

// Client defines the Hunter operations.
type Client interface {
	// DomainSearch returns up to limit email addresses found for domain.
	DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearch, error)
}

// Email is one address Hunter found on a domain.
type Email struct {
	Value       string `json:"value"`
	Type        string `json:"type"`
	Confidence  int    `json:"confidence"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Position    string `json:"position"`
	LinkedIn    string `json:"linkedin"`
	Twitter     string `json:"twitter"`
	PhoneNumber string `json:"phone_number"`
}

// DomainSearch is the data section of a domain search response.
type DomainSearch struct {
	Domain       string  `json:"domain"`
	Organization string  `json:"organization"`
	Industry     string  `json:"industry"`
	Country      string  `json:"country"`
	Emails       []Email `json:"emails"`
}

type domainSearchResponse struct {
	Data DomainSearch `json:"data"`
}

// Option configures the Hunter client.
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

// NewClient creates a new Hunter client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.hunter.io",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearch, error) {
	params := url.Values{
		"domain":  {domain},
		"api_key": {c.apiKey},
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/domain-search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(eris.Errorf("hunter: unexpected status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}

	var result domainSearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "hunter: unmarshal response")
	}
	return &result.Data, nil
}

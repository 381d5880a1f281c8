// Package ipdata provides a client for the ipdata.co geolocation API.
package ipdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visitor-enrich/internal/resilience"
)

// Client defines the ipdata operations.
type Client interface {
	// Lookup returns geolocation and ASN data for ip.
	Lookup(ctx context.Context, ip string) (*Response, error)
}

// ASN describes the autonomous system announcing the IP.
type ASN struct {
	ASN    string `json:"asn"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Route  string `json:"route"`
	Type   string `json:"type"`
}

// Response is the parsed ipdata response.
type Response struct {
	IP          string `json:"ip"`
	City        string `json:"city"`
	Region      string `json:"region"`
	RegionCode  string `json:"region_code"`
	CountryName string `json:"country_name"`
	CountryCode string `json:"country_code"`
	ASN         *ASN   `json:"asn"`
}

// Option configures the ipdata client.
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

// NewClient creates a new ipdata client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.ipdata.co",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, ip string) (*Response, error) {
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(ip), url.Values{"api-key": {c.apiKey}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ipdata: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ipdata: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ipdata: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(eris.Errorf("ipdata: unexpected status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "ipdata: unmarshal response")
	}
	return &result, nil
}

// Package ipapi provides a client for the keyless ip-api.com JSON endpoint.
package ipapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/visitor-enrich/internal/resilience"
)

// DefaultRatePerMinute is the free tier's request allowance.
const DefaultRatePerMinute = 45

const lookupFields = "status,message,country,countryCode,region,regionName,city,zip,lat,lon,timezone,isp,org,as,query"

// Client defines the ip-api operations.
type Client interface {
	// Lookup returns geolocation and network ownership for ip. A response
	// with Status "fail" is returned as-is.
	Lookup(ctx context.Context, ip string) (*Response, error)
}

// Response is the parsed ip-api response.
type Response struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Region      string  `json:"region"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
	Query       string  `json:"query"`
}

// OK reports whether the lookup succeeded.
func (r *Response) OK() bool {
	return r != nil && r.Status == "success"
}

// Option configures the ip-api client.
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

// WithRatePerMinute sets the client-side request budget. Zero or less
// disables limiting.
func WithRatePerMinute(n int) Option {
	return func(c *httpClient) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new ip-api client limited to DefaultRatePerMinute.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "http://ip-api.com",
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/DefaultRatePerMinute), DefaultRatePerMinute),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, ip string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ipapi: rate limit wait")
		}
	}

	reqURL := fmt.Sprintf("%s/json/%s?%s", c.baseURL, url.PathEscape(ip), url.Values{"fields": {lookupFields}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ipapi: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ipapi: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ipapi: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(eris.Errorf("ipapi: unexpected status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "ipapi: unmarshal response")
	}
	return &result, nil
}

// Package crux queries the Chrome UX Report API for origin-level Core Web Vitals.
package crux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/cwvcheck/internal/utils"
	"github.com/sw33tLie/cwvcheck/pkg/whttp"
)

const (
	CRUX_QUERY_RECORD_ENDPOINT = "https://chromeuxreport.googleapis.com/v1/records:queryRecord"
)

// Config holds everything the client needs to talk to the API.
type Config struct {
	APIKey   string
	Endpoint string
	Headers  []whttp.WHTTPHeader
	Keys     MetricKeys
	// Timeout bounds a single API call. Zero waits forever.
	Timeout time.Duration
	Proxy   string
}

// DefaultConfig returns the production endpoint and headers for apiKey.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:   apiKey,
		Endpoint: CRUX_QUERY_RECORD_ENDPOINT,
		Headers: []whttp.WHTTPHeader{
			{Name: "Content-Type", Value: "application/json"},
		},
		Keys: LegacyMetricKeys,
	}
}

// Response is the outcome of one queryRecord call. Vitals is nil unless OK.
type Response struct {
	StatusCode int
	Body       string
	Vitals     *Vitals
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Client struct {
	cfg  Config
	http *retryablehttp.Client
}

// NewClient validates cfg and builds a client for it.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("no CrUX API key configured")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = CRUX_QUERY_RECORD_ENDPOINT
	}
	if cfg.Keys == (MetricKeys{}) {
		cfg.Keys = LegacyMetricKeys
	}

	httpClient, err := whttp.NewClient(whttp.ClientOptions{Timeout: cfg.Timeout, Proxy: cfg.Proxy})
	if err != nil {
		return nil, err
	}

	return &Client{cfg: cfg, http: httpClient}, nil
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid CrUX endpoint %q: %w", c.cfg.Endpoint, err)
	}
	q := u.Query()
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// QueryRecord posts payload to the API.
// A non-2xx status is not an error: the returned Response has no Vitals.
// Transport failures and unparsable 2xx bodies are.
func (c *Client) QueryRecord(ctx context.Context, payload string) (*Response, error) {
	reqURL, err := c.requestURL()
	if err != nil {
		return nil, err
	}

	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method:  http.MethodPost,
		URL:     reqURL,
		Body:    []byte(payload),
		Headers: c.cfg.Headers,
	}, c.http)
	if err != nil {
		return nil, fmt.Errorf("querying CrUX record: %w", err)
	}

	resp := &Response{StatusCode: res.StatusCode, Body: res.BodyString}
	if !resp.OK() {
		utils.Log.Debugf("CrUX answered %d: %s", res.StatusCode, res.BodyString)
		return resp, nil
	}

	vitals, err := ParseVitals(res.BodyString, c.cfg.Keys)
	if err != nil {
		return resp, err
	}
	resp.Vitals = &vitals
	return resp, nil
}

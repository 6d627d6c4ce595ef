// Package valuation provides a client for the Bridge public-records API that
// serves Zillow estimates, parcels and transactions.
package valuation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.bridgedataoutput.com/api/v2"

// Client looks up valuation data for one property.
type Client interface {
	// Lookup queries every dataset with the given access token. A rejected
	// token or failed request is an error; datasets with no match are nil
	// blocks in the returned Bundle.
	Lookup(ctx context.Context, token string, q Query) (*Bundle, error)
}

// Query identifies a property by street line and city/state/zip line.
type Query struct {
	Address      string
	CityStateZip string
}

// Full joins both lines.
func (q Query) Full() string {
	return strings.TrimSpace(strings.Join(strings.Fields(q.Address+" "+q.CityStateZip), " "))
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps requests per second across all datasets.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Bridge client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common Bridge response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Bundle  json.RawMessage `json:"bundle"`
	Error   *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *httpClient) Lookup(ctx context.Context, token string, q Query) (*Bundle, error) {
	if token == "" {
		return nil, eris.New("valuation: empty access token")
	}
	full := q.Full()
	if full == "" {
		return nil, eris.New("valuation: empty address")
	}

	var b Bundle
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var z []Zestimate
		if err := c.get(gCtx, "/zestimates_v2/zestimates", url.Values{"access_token": {token}, "address": {full}}, &z); err != nil {
			return err
		}
		if len(z) > 0 && !z[0].empty() {
			b.Zestimate = &z[0]
		}
		return nil
	})
	g.Go(func() error {
		var p []Parcel
		if err := c.get(gCtx, "/pub/parcels", url.Values{"access_token": {token}, "address.full": {full}}, &p); err != nil {
			return err
		}
		if len(p) > 0 && !p[0].empty() {
			b.Parcel = &p[0]
		}
		return nil
	})
	g.Go(func() error {
		var tx []Transaction
		params := url.Values{"access_token": {token}, "address.full": {full}, "sortBy": {"recordingDate"}, "order": {"desc"}}
		if err := c.get(gCtx, "/pub/transactions", params, &tx); err != nil {
			return err
		}
		if len(tx) > 0 && !tx[0].empty() {
			b.Transaction = &tx[0]
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, into any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "valuation: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "valuation: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "valuation: request %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "valuation: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: truncate(body, 200)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return eris.Wrapf(err, "valuation: decode %s", path)
	}
	if !env.Success || env.Error != nil {
		msg := "request rejected"
		if env.Error != nil {
			msg = env.Error.Name + ": " + env.Error.Message
		}
		return &StatusError{Path: path, StatusCode: env.Status, Body: msg}
	}
	if len(env.Bundle) == 0 || bytes.Equal(env.Bundle, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Bundle, into); err != nil {
		return eris.Wrapf(err, "valuation: decode %s bundle", path)
	}
	return nil
}

// StatusError is a non-2xx or unsuccessful API response.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("valuation: %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

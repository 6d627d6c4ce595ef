// Package geocode resolves free-text addresses to coordinates via Google
// (when keyed) and the Census one-line geocoder.
package geocode

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client returns zero or more candidates for an address. No match is an empty
// slice, not an error.
type Client interface {
	Geocode(ctx context.Context, address string) ([]Candidate, error)
}

// Candidate is one geocoding match.
type Candidate struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	Zipcode          string  `json:"zipcode"`
	FormattedAddress string  `json:"formattedAddress"`
	Source           string  `json:"source"`
}

// Option configures a provider.
type Option func(*provider)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *provider) {
		p.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(p *provider) {
		if rps > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(p *provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

type provider struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newProvider(defaultRPS float64, opts []Option) provider {
	p := provider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(defaultRPS), int(defaultRPS)),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Cascade tries each client in order and returns the first non-empty
// candidate list. Provider errors are logged and the next provider is tried;
// the last error is returned only when every provider failed.
type Cascade []Client

// Geocode implements Client.
func (c Cascade) Geocode(ctx context.Context, address string) ([]Candidate, error) {
	var lastErr error
	failed := 0
	for _, client := range c {
		cands, err := client.Geocode(ctx, address)
		if err != nil {
			zap.L().Warn("geocode: provider failed", zap.String("address", address), zap.Error(err))
			lastErr = err
			failed++
			continue
		}
		if len(cands) > 0 {
			return cands, nil
		}
	}
	if failed == len(c) && lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

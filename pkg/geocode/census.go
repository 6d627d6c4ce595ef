package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBenchmark  = "Public_AR_Current"
)

type censusOneLineResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"` // longitude
				Y float64 `json:"y"` // latitude
			} `json:"coordinates"`
			MatchedAddress    string `json:"matchedAddress"`
			AddressComponents struct {
				Zip string `json:"zip"`
			} `json:"addressComponents"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// Census geocodes through the Census Bureau one-line address API.
type Census struct {
	provider
}

// NewCensus creates a Census geocoder. Default limit is 20 req/s.
func NewCensus(opts ...Option) *Census {
	return &Census{provider: newProvider(20, opts)}
}

// Geocode implements Client.
func (c *Census) Geocode(ctx context.Context, address string) ([]Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	params := url.Values{
		"address":   {address},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, censusOneLineURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census returned status %d", resp.StatusCode)
	}

	var cr censusOneLineResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}

	out := make([]Candidate, 0, len(cr.Result.AddressMatches))
	for _, m := range cr.Result.AddressMatches {
		out = append(out, Candidate{
			Latitude:         m.Coordinates.Y,
			Longitude:        m.Coordinates.X,
			Zipcode:          m.AddressComponents.Zip,
			FormattedAddress: m.MatchedAddress,
			Source:           "census",
		})
	}
	return out, nil
}

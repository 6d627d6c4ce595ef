package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress  string `json:"formatted_address"`
	AddressComponents []struct {
		LongName string   `json:"long_name"`
		Types    []string `json:"types"`
	} `json:"address_components"`
}

func (r googleResult) postalCode() string {
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			if t == "postal_code" {
				return c.LongName
			}
		}
	}
	return ""
}

// Google geocodes through the Google Geocoding API.
type Google struct {
	provider
	apiKey string
}

// NewGoogle creates a Google geocoder. Default limit is 10 req/s.
func NewGoogle(apiKey string, opts ...Option) *Google {
	return &Google{provider: newProvider(10, opts), apiKey: apiKey}
}

// Geocode implements Client.
func (g *Google) Geocode(ctx context.Context, address string) ([]Candidate, error) {
	if g.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{"address": {address}, "key": {g.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	var gr googleGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch gr.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, eris.Errorf("geocode: google status %s: %s", gr.Status, gr.ErrorMessage)
	}

	out := make([]Candidate, 0, len(gr.Results))
	for _, r := range gr.Results {
		out = append(out, Candidate{
			Latitude:         r.Geometry.Location.Lat,
			Longitude:        r.Geometry.Location.Lng,
			Zipcode:          r.postalCode(),
			FormattedAddress: r.FormattedAddress,
			Source:           "google",
		})
	}
	return out, nil
}

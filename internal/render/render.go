// Package render turns an auction's geolocated listings into a KML map and a
// GeoJSON feature collection.
package render

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/store"
)

// Options configures output locations and marker thresholds.
// An empty GeoJSONPath skips the GeoJSON export.
type Options struct {
	KMLPath            string
	GeoJSONPath        string
	ExpensiveThreshold float64
}

// Output summarizes one render.
type Output struct {
	AuctionID   string `json:"auction_id"`
	Placemarks  int    `json:"placemarks"`
	Dropped     int    `json:"dropped"`
	KMLPath     string `json:"kml_path"`
	GeoJSONPath string `json:"geojson_path,omitempty"`
	KML         []byte `json:"-"`
}

// Renderer reads listings from the store and rewrites the map files.
type Renderer struct {
	store      store.Store
	opts       Options
	classifier Classifier
}

// New creates a Renderer.
func New(st store.Store, opts Options) *Renderer {
	return &Renderer{
		store:      st,
		opts:       opts,
		classifier: Classifier{ExpensiveThreshold: opts.ExpensiveThreshold},
	}
}

// Render regenerates the map for auctionID. Listings without a usable
// coordinate pair are left off the map. Files are replaced wholesale.
func (r *Renderer) Render(ctx context.Context, auctionID string, globalPPDate time.Time) (*Output, error) {
	listings, err := r.store.ListListings(ctx, store.ListingFilter{AuctionID: auctionID})
	if err != nil {
		return nil, eris.Wrapf(err, "render: load listings for %s", auctionID)
	}

	out := &Output{AuctionID: auctionID, KMLPath: r.opts.KMLPath, GeoJSONPath: r.opts.GeoJSONPath}
	doc := NewDocument(auctionID)
	features := make([]*geojson.Feature, 0, len(listings))

	for i := range listings {
		l := &listings[i]
		if !l.HasCoords() {
			continue
		}
		if !Mappable(*l.Coords) {
			out.Dropped++
			zap.L().Debug("render: dropping unmappable coordinates",
				zap.String("auction_number", l.AuctionNumber),
				zap.Float64("lat", l.Coords.Latitude),
				zap.Float64("lng", l.Coords.Longitude),
			)
			continue
		}
		marker := r.classifier.Classify(l, globalPPDate)
		doc.Document.Placemarks = append(doc.Document.Placemarks, BuildPlacemark(l, marker))
		features = append(features, BuildFeature(l, marker))
	}
	out.Placemarks = len(doc.Document.Placemarks)

	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		return nil, err
	}
	out.KML = buf.Bytes()

	if r.opts.KMLPath != "" {
		if err := writeFileAtomic(r.opts.KMLPath, out.KML); err != nil {
			return nil, err
		}
	}
	if r.opts.GeoJSONPath != "" {
		data, err := EncodeFeatures(features)
		if err != nil {
			return nil, err
		}
		if err := writeFileAtomic(r.opts.GeoJSONPath, data); err != nil {
			return nil, err
		}
	}

	zap.L().Info("render: map written",
		zap.String("auction_id", auctionID),
		zap.Int("placemarks", out.Placemarks),
		zap.Int("dropped", out.Dropped),
		zap.String("kml_path", r.opts.KMLPath),
	)
	return out, nil
}

// Mappable reports whether c is a real position: neither component is zero
// and the pair is a valid latitude/longitude.
func Mappable(c model.Coords) bool {
	if c.Latitude == 0 || c.Longitude == 0 {
		return false
	}
	return s2.LatLngFromDegrees(c.Latitude, c.Longitude).IsValid()
}

func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "render: create dir for %s", path)
		}
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "render: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "render: rename %s", tmp)
	}
	return nil
}

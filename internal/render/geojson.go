package render

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/sheriff-sales/internal/model"
)

// BuildFeature converts a listing into a GeoJSON point feature keyed by
// auction number.
func BuildFeature(l *model.Listing, marker Marker) *geojson.Feature {
	props := map[string]interface{}{
		"auctionNumber": l.AuctionNumber,
		"docketNumber":  l.DocketNumber,
		"auctionID":     l.AuctionID,
		"address":       l.PrimaryAddress(),
		"municipality":  l.Municipality,
		"saleType":      string(l.SaleType),
		"marker":        string(marker),
		"plaintiff":     l.PlaintiffName,
		"attorney":      l.AttorneyName,
		"isFC":          l.IsFC,
		"isBank":        l.IsBank,
		"isPP":          l.IsPP,
		"checks":        l.Checks.Summary(),
	}
	setFloat(props, "judgment", l.Judgment)
	setFloat(props, "cost", l.Cost)
	setFloat(props, "costTax", l.CostTax)
	if l.PPDate != nil {
		props["ppDate"] = l.PPDate.UTC().Format(time.DateOnly)
	}
	if zd := l.ZillowData; zd != nil {
		setFloat(props, "estimate", zd.ZillowEstimate)
		setFloat(props, "rentalEstimate", zd.ZillowRentalEstimate)
		if zd.ZillowLink != "" {
			props["link"] = zd.ZillowLink
		}
	}

	return &geojson.Feature{
		ID:         l.AuctionNumber,
		Geometry:   geom.NewPointFlat(geom.XY, []float64{l.Coords.Longitude, l.Coords.Latitude}),
		Properties: props,
	}
}

func setFloat(props map[string]interface{}, key string, v *float64) {
	if v != nil {
		props[key] = *v
	}
}

// EncodeFeatures marshals features as a FeatureCollection.
func EncodeFeatures(features []*geojson.Feature) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: features}
	if fc.Features == nil {
		fc.Features = []*geojson.Feature{}
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "render: encode geojson")
	}
	return data, nil
}

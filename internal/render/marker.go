package render

import (
	"time"

	"github.com/sells-group/sheriff-sales/internal/model"
)

// DefaultExpensiveThreshold is the valuation estimate above which a listing
// gets the expensive variant of its marker.
const DefaultExpensiveThreshold = 85000.0

// Marker is the KML style a placemark points at.
type Marker string

const (
	MarkerInvalid               Marker = "zillowInvalid"
	MarkerStayed                Marker = "stayPlacemark"
	MarkerFreeAndClear          Marker = "freeAndClearPlacemark"
	MarkerFreeAndClearExpensive Marker = "freeAndClearExpensivePlacemark"
	MarkerBank                  Marker = "bankPlacemark"
	MarkerBankExpensive         Marker = "bankExpensivePlacemark"
	MarkerTaxLien               Marker = "taxLienPlacemark"
	MarkerTaxLienExpensive      Marker = "taxLienExpensivePlacemark"
	MarkerMortgage              Marker = "mortgagePlacemark"
	MarkerMortgageExpensive     Marker = "mortgageExpensivePlacemark"
)

// StyleURL returns the document-local reference to the marker's style.
func (m Marker) StyleURL() string {
	return "#" + string(m)
}

// markerIcons maps each marker to its icon, in document style order.
var markerIcons = []struct {
	Marker Marker
	Icon   string
}{
	{MarkerStayed, "http://maps.google.com/mapfiles/ms/icons/grey.png"},
	{MarkerMortgageExpensive, "http://maps.google.com/mapfiles/ms/icons/red-dot.png"},
	{MarkerMortgage, "http://maps.google.com/mapfiles/ms/icons/red.png"},
	{MarkerTaxLienExpensive, "http://maps.google.com/mapfiles/ms/icons/yellow-dot.png"},
	{MarkerTaxLien, "http://maps.google.com/mapfiles/ms/icons/yellow.png"},
	{MarkerFreeAndClearExpensive, "http://maps.google.com/mapfiles/ms/icons/blue-dot.png"},
	{MarkerFreeAndClear, "http://maps.google.com/mapfiles/ms/icons/blue.png"},
	{MarkerBankExpensive, "http://maps.google.com/mapfiles/ms/icons/green-dot.png"},
	{MarkerBank, "http://maps.google.com/mapfiles/ms/icons/green.png"},
	{MarkerInvalid, "http://maps.google.com/mapfiles/ms/icons/orange.png"},
}

// Classifier assigns markers. The zero value uses DefaultExpensiveThreshold.
type Classifier struct {
	ExpensiveThreshold float64
}

// ClassifyMarker classifies l with the default threshold.
func ClassifyMarker(l *model.Listing, globalPPDate time.Time) Marker {
	return Classifier{}.Classify(l, globalPPDate)
}

// Classify walks the decision list in order; the first match wins. A zero
// globalPPDate disables the postponed-beyond-consensus rule. Listings that
// match nothing fall back to the plain mortgage marker.
func (c Classifier) Classify(l *model.Listing, globalPPDate time.Time) Marker {
	if l == nil {
		return MarkerMortgage
	}
	switch {
	case l.ZillowInvalid:
		return MarkerInvalid
	case l.SaleStatus == "STAYED":
		return MarkerStayed
	case l.PPDate != nil && !globalPPDate.IsZero() && l.PPDate.After(globalPPDate):
		return MarkerStayed
	}

	expensive := c.expensive(l)
	pick := func(plain, exp Marker) Marker {
		if expensive {
			return exp
		}
		return plain
	}

	switch {
	case l.IsFC:
		return pick(MarkerFreeAndClear, MarkerFreeAndClearExpensive)
	case l.IsBank:
		return pick(MarkerBank, MarkerBankExpensive)
	case l.SaleType == model.SaleTypeTaxLien:
		return pick(MarkerTaxLien, MarkerTaxLienExpensive)
	case l.SaleType == model.SaleTypeMortgage:
		return pick(MarkerMortgage, MarkerMortgageExpensive)
	}
	return MarkerMortgage
}

func (c Classifier) expensive(l *model.Listing) bool {
	threshold := c.ExpensiveThreshold
	if threshold <= 0 {
		threshold = DefaultExpensiveThreshold
	}
	return l.Estimate() > threshold
}

package normalize

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseMoney strips spaces, thousands separators and a leading "$", then
// parses the remainder. Unparsable or non-finite input yields nil.
func ParseMoney(s string) *float64 {
	clean := strings.NewReplacer(" ", "", ",", "", "$", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return nil
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"2006-01-02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"01-02-2006",
}

// ParseDate parses the date formats printed on the bid lists. Unparsable
// input yields nil, never a zero-time sentinel.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

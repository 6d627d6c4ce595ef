package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// docketRe anchors the start of a record, e.g. "GD-19-012345".
	docketRe = regexp.MustCompile(`([A-Z])\w+-\d{2}-\d{6}`)

	// addressRe anchors the end of a record: street, city, state and ZIP in one run.
	addressRe = regexp.MustCompile(`(?i)\b(p\.?\s?o\.?\b|post office|\d{1,5}|\s)\s*(?:\S\s*){8,50}` +
		`(AK|Alaska|AL|Alabama|AR|Arkansas|AZ|Arizona|CA|California|CO|Colorado|CT|Connecticut|` +
		`DC|Washington\sDC|Washington\D\.C\.|DE|Delaware|FL|Florida|GA|Georgia|GU|Guam|HI|Hawaii|` +
		`IA|Iowa|ID|Idaho|IL|Illinois|IN|Indiana|KS|Kansas|KY|Kentucky|LA|Louisiana|MA|Massachusetts|` +
		`MD|Maryland|ME|Maine|MI|Michigan|MN|Minnesota|MO|Missouri|MS|Mississippi|MT|Montana|` +
		`NC|North\sCarolina|ND|North\sDakota|NE|New\sEngland|NH|New\sHampshire|NJ|New\sJersey|` +
		`NM|New\sMexico|NV|Nevada|NY|New\sYork|OH|Ohio|OK|Oklahoma|OR|Oregon|PA|Pennsylvania|` +
		`RI|Rhode\sIsland|SC|South\sCarolina|SD|South\sDakota|TN|Tennessee|TX|Texas|UT|Utah|` +
		`VA|Virginia|VI|Virgin\sIslands|VT|Vermont|WA|Washington|WI|Wisconsin|WV|West\sVirginia|WY|Wyoming)` +
		`(\s+|&nbsp;|<(\S|\s){1,10}>){1,5}\d{5}`)

	freeAndClearRe = regexp.MustCompile(`(?i)F&C|F\s&\sC|FC|FREE\sAND\sCLEAR|FREE\s&\sCLEAR`)

	headerDateRe = regexp.MustCompile(`(?i)(Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|` +
		`Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\s+(\d{1,2})\s+(\d{4})`)
)

var monthIndex = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// IsDocket reports whether s carries a docket number.
func IsDocket(s string) bool { return docketRe.MatchString(s) }

// IsAddress reports whether s looks like a full street/city/state/ZIP address.
func IsAddress(s string) bool { return addressRe.MatchString(s) }

// AuctionIDFromHeader derives the MMYYYY auction code from a header line such
// as "Master Bid List July 6, 2020". The second result is false when the line
// carries no recognizable date.
func AuctionIDFromHeader(text string) (string, bool) {
	m := headerDateRe.FindStringSubmatch(strings.Replace(text, ",", "", 1))
	if m == nil {
		return "", false
	}
	month, ok := monthIndex[strings.ToLower(m[1][:3])]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%02d%s", month, m[3]), true
}

package render

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sells-group/sheriff-sales/internal/model"
)

// KMLContentType is the media type the map is served with.
const KMLContentType = "application/vnd.google-earth.kml+xml"

// DownloadName is the filename offered to clients downloading the map.
const DownloadName = "map.kml"

const kmlNamespace = "http://www.opengis.net/kml/2.2"

// KML is the root of a map document.
type KML struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document KMLDocument `xml:"Document"`
}

// KMLDocument holds the styles, camera and placemarks.
type KMLDocument struct {
	Name        string      `xml:"name"`
	Open        int         `xml:"open"`
	Description string      `xml:"description"`
	Styles      []Style     `xml:"Style"`
	LookAt      LookAt      `xml:"LookAt"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style is an icon style referenced by placemarks.
type Style struct {
	ID   string `xml:"id,attr"`
	Icon string `xml:"IconStyle>Icon>href"`
}

// LookAt positions the initial camera.
type LookAt struct {
	Longitude float64 `xml:"longitude"`
	Latitude  float64 `xml:"latitude"`
	Altitude  float64 `xml:"altitude"`
	Heading   float64 `xml:"heading"`
	Tilt      float64 `xml:"tilt"`
	Range     float64 `xml:"range"`
}

// Placemark is one listing on the map.
type Placemark struct {
	Name         string `xml:"name"`
	StyleURL     string `xml:"styleUrl"`
	ExtendedData []Data `xml:"ExtendedData>Data"`
	Coordinates  string `xml:"Point>coordinates"`
}

// Data is a named extended-data value.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// alleghenyLookAt frames the county.
var alleghenyLookAt = LookAt{
	Longitude: -79.997,
	Latitude:  40.445,
	Heading:   -148.4122922628044,
	Range:     500000,
}

var printer = message.NewPrinter(language.AmericanEnglish)

// NewDocument returns an empty map for the auction with every marker style
// declared.
func NewDocument(auctionID string) *KML {
	month := AuctionMonth(auctionID)
	doc := &KML{
		Xmlns: kmlNamespace,
		Document: KMLDocument{
			Name:        month,
			Open:        1,
			Description: strings.TrimSpace(month + " postponements"),
			LookAt:      alleghenyLookAt,
		},
	}
	for _, mi := range markerIcons {
		doc.Document.Styles = append(doc.Document.Styles, Style{ID: string(mi.Marker), Icon: mi.Icon})
	}
	return doc
}

// AuctionMonth returns the month name encoded in an MMYYYY auction id, or
// "" when the id does not carry one.
func AuctionMonth(auctionID string) string {
	if len(auctionID) < 2 {
		return ""
	}
	m, err := strconv.Atoi(auctionID[:2])
	if err != nil || m < 1 || m > 12 {
		return ""
	}
	return time.Month(m).String()
}

// BuildPlacemark renders one listing. The caller guarantees coordinates.
func BuildPlacemark(l *model.Listing, marker Marker) Placemark {
	zd := l.ZillowData
	if zd == nil {
		zd = &model.ZillowData{}
	}

	name := zd.ZillowAddress
	if name == "" {
		name = l.PrimaryAddress()
	}

	data := []Data{
		{"Auction Number", l.AuctionNumber},
		{"Sale Type", string(l.SaleType)},
		{"Judgment", currencyIfNonZero(l.Judgment)},
		{"Tax Estimate", currencyIfNonZero(zd.TaxAssessment)},
		{"Zillow Estimate", currencyIfNonZero(zd.ZillowEstimate)},
		{"Zillow Rental Estimate", currencyIfNonNegative(zd.ZillowRentalEstimate)},
		{"Last Sold Price", currencyIfNonZero(zd.LastSoldPrice)},
		{"Last Sold Date", shortDate(zd.LastSoldDate)},
		{"Sqft", grouped(zd.Sqft)},
		{"Rooms", intValue(zd.Rooms)},
		{"Baths", floatValue(zd.Bath)},
		{"Year Built", intValue(zd.YearBuilt)},
		{"APN", zd.APN},
		{"Unpaid Balance", currencyIfNonNegative(zd.UnpaidBalance)},
		{"Lender Name", zd.LenderName},
		{"Attorney Name", l.AttorneyName},
	}
	if l.FirmName != "" {
		data = append(data, Data{"Firm Name", l.FirmName})
	}
	if l.ContactEmail != "" {
		data = append(data, Data{"Contact Email", l.ContactEmail})
	}
	data = append(data,
		Data{"Plaintiff Name", strings.ReplaceAll(l.PlaintiffName, "&", "and")},
		Data{"Cost Tax", currencyIfNonZero(l.CostTax)},
		Data{"Checks", l.Checks.Summary()},
		Data{"Docket Number", l.DocketNumber},
		Data{"Zillow Link", zd.ZillowLink},
		Data{"Duplicate", strconv.FormatBool(l.IsDuplicate)},
	)
	if l.PPDate != nil {
		data = append(data, Data{"PP Date", shortDate(l.PPDate)})
	}

	for i := range data {
		data[i].Value = stripAmpersands(data[i].Value)
	}

	var lon, lat float64
	if l.Coords != nil {
		lon, lat = l.Coords.Longitude, l.Coords.Latitude
	}
	return Placemark{
		Name:         stripAmpersands(name),
		StyleURL:     marker.StyleURL(),
		ExtendedData: data,
		Coordinates:  formatCoord(lon) + "," + formatCoord(lat) + ",0",
	}
}

// Encode writes doc as an XML document.
func (k *KML) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return eris.Wrap(err, "render: write kml header")
	}
	enc := xml.NewEncoder(w)
	if err := enc.Encode(k); err != nil {
		return eris.Wrap(err, "render: encode kml")
	}
	return eris.Wrap(enc.Flush(), "render: flush kml")
}

func stripAmpersands(s string) string {
	return strings.ReplaceAll(s, "&", "")
}

func currency(v float64) string {
	if v < 0 {
		return "-$" + printer.Sprint(number.Decimal(-v, number.Scale(2)))
	}
	return "$" + printer.Sprint(number.Decimal(v, number.Scale(2)))
}

func currencyIfNonZero(v *float64) string {
	if v == nil || *v == 0 {
		return ""
	}
	return currency(*v)
}

func currencyIfNonNegative(v *float64) string {
	if v == nil || *v < 0 {
		return ""
	}
	return currency(*v)
}

func grouped(v *float64) string {
	if v == nil || *v == 0 {
		return ""
	}
	return printer.Sprint(number.Decimal(*v))
}

func intValue(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func shortDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

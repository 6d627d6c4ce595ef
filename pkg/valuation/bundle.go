package valuation

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Bundle holds the first match of each dataset. Any block may be nil.
type Bundle struct {
	Zestimate   *Zestimate
	Parcel      *Parcel
	Transaction *Transaction
}

// Empty reports whether no dataset matched.
func (b *Bundle) Empty() bool {
	return b == nil || (b.Zestimate == nil && b.Parcel == nil && b.Transaction == nil)
}

// Zestimate is a Zillow estimate record.
type Zestimate struct {
	Zpid      FlexString `json:"zpid"`
	Zestimate *float64   `json:"zestimate"`
	Rental    []Rental   `json:"rental"`
	ZillowURL string     `json:"zillowUrl"`
}

// Rental is a rent Zestimate.
type Rental struct {
	Zestimate *float64 `json:"zestimate"`
}

func (z Zestimate) empty() bool {
	return z.Zpid == "" && z.Zestimate == nil && len(z.Rental) == 0 && z.ZillowURL == ""
}

// RentalEstimate returns the first rental estimate, if any.
func (z *Zestimate) RentalEstimate() *float64 {
	if z == nil || len(z.Rental) == 0 {
		return nil
	}
	return z.Rental[0].Zestimate
}

// Building is one structure on a parcel.
type Building struct {
	Bedrooms  *int     `json:"bedrooms"`
	Baths     *float64 `json:"baths"`
	FullBaths *float64 `json:"fullBaths"`
	HalfBaths *float64 `json:"halfBaths"`
	YearBuilt *int     `json:"yearBuilt"`
}

// Bath returns the first bath count on record, preferring the total.
func (b *Building) Bath() *float64 {
	if b == nil {
		return nil
	}
	for _, v := range []*float64{b.Baths, b.FullBaths, b.HalfBaths} {
		if v != nil && *v != 0 {
			return v
		}
	}
	return nil
}

// Parcel is a county assessor parcel record.
type Parcel struct {
	Zpid              FlexString `json:"zpid"`
	APN               string     `json:"apn"`
	LotSizeSquareFeet *float64   `json:"lotSizeSquareFeet"`
	Building          []Building `json:"building"`
	Address           struct {
		Full string `json:"full"`
	} `json:"address"`
	// Coordinates is [longitude, latitude].
	Coordinates []float64 `json:"coordinates"`
}

func (p Parcel) empty() bool {
	return p.Zpid == "" && p.APN == "" && p.LotSizeSquareFeet == nil && len(p.Building) == 0 &&
		p.Address.Full == "" && len(p.Coordinates) == 0
}

// FirstBuilding returns the first building, or nil.
func (p *Parcel) FirstBuilding() *Building {
	if p == nil || len(p.Building) == 0 {
		return nil
	}
	return &p.Building[0]
}

// LonLat returns the parcel coordinates when both are present.
func (p *Parcel) LonLat() (lon, lat float64, ok bool) {
	if p == nil || len(p.Coordinates) < 2 {
		return 0, 0, false
	}
	return p.Coordinates[0], p.Coordinates[1], true
}

// Transaction is a recorded deed or mortgage transaction.
type Transaction struct {
	TotalTransferTax *float64 `json:"totalTransferTax"`
	SalesPrice       *float64 `json:"salesPrice"`
	UnpaidBalance    *float64 `json:"unpaidBalance"`
	SignatureDate    string   `json:"signatureDate"`
	RecordingDate    string   `json:"recordingDate"`
	LenderName       []string `json:"lenderName"`
}

func (t Transaction) empty() bool {
	return t.TotalTransferTax == nil && t.SalesPrice == nil && t.UnpaidBalance == nil &&
		t.SignatureDate == "" && t.RecordingDate == "" && len(t.LenderName) == 0
}

// SoldDate returns the signature date, falling back to the recording date.
func (t *Transaction) SoldDate() string {
	if t == nil {
		return ""
	}
	if t.SignatureDate != "" {
		return t.SignatureDate
	}
	return t.RecordingDate
}

// Lender returns the first lender name.
func (t *Transaction) Lender() string {
	if t == nil || len(t.LenderName) == 0 {
		return ""
	}
	return t.LenderName[0]
}

// FlexString accepts a JSON string or number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexString(v)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return err
	}
	*f = FlexString(s)
	return nil
}

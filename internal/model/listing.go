// Package model defines the auction listing entities shared across the pipeline.
package model

import (
	"time"
)

// SaleType distinguishes mortgage foreclosures from tax-lien sales.
type SaleType string

const (
	SaleTypeMortgage SaleType = "M"
	SaleTypeTaxLien  SaleType = "T"
)

// Config keys persisted alongside listings.
const (
	ConfigCurrentAuctionID = "currentAuctionID"
	ConfigGlobalPPDate     = "globalPPDate"
)

// Listing is one sheriff-sale auction entry. AuctionNumber is the natural key.
type Listing struct {
	AuctionNumber string `json:"auctionNumber"`
	DocketNumber  string `json:"docketNumber"`
	AuctionID     string `json:"auctionID"`

	AttorneyName  string `json:"attorneyName"`
	PlaintiffName string `json:"plaintiffName"`
	DefendantName string `json:"defendantName"`
	FirmName      string `json:"firmName"`
	ContactEmail  string `json:"contactEmail"`

	SaleType    SaleType `json:"saleType"`
	SaleStatus  string   `json:"saleStatus"`
	ReasonForPP string   `json:"reasonForPP"`
	IsFC        bool     `json:"isFC"`
	IsBank      bool     `json:"isBank"`
	IsPP        bool     `json:"isPP"`
	IsDuplicate bool     `json:"isDuplicate"`

	SaleDate *time.Time `json:"saleDate,omitempty"`
	PPDate   *time.Time `json:"ppDate,omitempty"`

	Cost     *float64 `json:"cost,omitempty"`
	CostTax  *float64 `json:"costTax,omitempty"`
	Judgment *float64 `json:"judgment,omitempty"`

	Checks       Checks   `json:"checks"`
	Address      []string `json:"address"`
	Municipality string   `json:"municipality"`

	Coords        *Coords     `json:"coords,omitempty"`
	ZillowData    *ZillowData `json:"zillowData,omitempty"`
	ZillowInvalid bool        `json:"zillowInvalid"`

	Enrichment EnrichmentState `json:"enrichment"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Checks are the three marker columns printed next to each bid-list entry.
type Checks struct {
	SVS       bool `json:"svs"`
	Check3129 bool `json:"3129"`
	OK        bool `json:"ok"`
}

// Summary renders the checks the way the bid list prints them, e.g. "Y Y X".
func (c Checks) Summary() string {
	mark := func(b bool) string {
		if b {
			return "Y"
		}
		return "X"
	}
	return mark(c.SVS) + " " + mark(c.Check3129) + " " + mark(c.OK)
}

// Coords is a WGS84 point.
type Coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ZillowData is the valuation bundle layered onto a listing by enrichment.
type ZillowData struct {
	ZillowID             string     `json:"zillowID,omitempty"`
	ZillowEstimate       *float64   `json:"zillowEstimate,omitempty"`
	ZillowRentalEstimate *float64   `json:"zillowRentalEstimate,omitempty"`
	TaxAssessment        *float64   `json:"taxAssessment,omitempty"`
	Rooms                *int       `json:"rooms,omitempty"`
	Bath                 *float64   `json:"bath,omitempty"`
	Sqft                 *float64   `json:"sqft,omitempty"`
	YearBuilt            *int       `json:"yearBuilt,omitempty"`
	LastSoldPrice        *float64   `json:"lastSoldPrice,omitempty"`
	LastSoldDate         *time.Time `json:"lastSoldDate,omitempty"`
	LenderName           string     `json:"lenderName,omitempty"`
	APN                  string     `json:"apn,omitempty"`
	UnpaidBalance        *float64   `json:"unpaidBalance,omitempty"`
	ZillowLink           string     `json:"zillowLink,omitempty"`
	ZillowAddress        string     `json:"zillowAddress,omitempty"`
	LastZillowUpdate     *time.Time `json:"lastZillowUpdate,omitempty"`
}

// Estimate returns the valuation estimate, or 0 when none is on file.
func (l *Listing) Estimate() float64 {
	if l == nil || l.ZillowData == nil || l.ZillowData.ZillowEstimate == nil {
		return 0
	}
	return *l.ZillowData.ZillowEstimate
}

// PrimaryAddress returns the first collected address, or "".
func (l *Listing) PrimaryAddress() string {
	if l == nil || len(l.Address) == 0 {
		return ""
	}
	return l.Address[0]
}

// HasCoords reports whether the listing carries a coordinate pair.
func (l *Listing) HasCoords() bool {
	return l != nil && l.Coords != nil
}

// Clone returns a deep copy so enrichment passes can mutate freely.
func (l Listing) Clone() Listing {
	out := l
	out.Address = append([]string(nil), l.Address...)
	if l.Coords != nil {
		c := *l.Coords
		out.Coords = &c
	}
	if l.ZillowData != nil {
		z := *l.ZillowData
		out.ZillowData = &z
	}
	return out
}

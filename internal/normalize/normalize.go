// Package normalize turns parsed record fragments into typed listings.
package normalize

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/parser"
)

var (
	bankRe    = regexp.MustCompile(`(?i)U\.?S\.?\sBANK|WELLS\sFARGO|DITECH\sFINANCIAL`)
	taxLienRe = regexp.MustCompile(`(?i)LIEN`)
)

// Full-layout slot positions.
const (
	slotDocket       = 0
	slotAttorney     = 1
	slotPlaintiff    = 2
	slotSaleBasis    = 3
	slotSaleDate     = 4
	slotCostTax      = 5
	slotCost         = 6
	slotSaleStatus   = 7
	slotPPDate       = 8
	slotReasonForPP  = 9
	slotCheckSVS     = 10
	slotCheck3129    = 11
	slotCheckOK      = 12
	slotAuctionNum   = 13
	slotDefendant    = 14
	slotMunicipality = 15
)

const municipalityPrefix = "Municipality: "

// IsBankPlaintiff reports whether the plaintiff is one of the tracked lenders.
func IsBankPlaintiff(name string) bool { return bankRe.MatchString(name) }

// IsTaxLien reports whether the sale basis describes a tax-lien sale.
func IsTaxLien(basis string) bool { return taxLienRe.MatchString(basis) }

// Normalize maps a fragment onto a Listing. Fragments of at least
// layout.MinFullSlots slots use the full bid-list layout; shorter ones use the
// compact postponement layout, indexed from the end. The second result is
// false when the fragment has no auction number and must be discarded.
func Normalize(frag parser.Fragment, auctionID string, isPP bool, layout parser.Layout) (*model.Listing, bool) {
	slot := func(i int) string {
		if i < 0 || i >= len(frag.Slots) {
			return ""
		}
		return strings.TrimSpace(frag.Slots[i])
	}

	l := &model.Listing{
		DocketNumber:  slot(slotDocket),
		AuctionID:     auctionID,
		AttorneyName:  slot(slotAttorney),
		PlaintiffName: slot(slotPlaintiff),
		SaleType:      model.SaleTypeMortgage,
		SaleStatus:    slot(slotSaleStatus),
		SaleDate:      ParseDate(slot(slotSaleDate)),
		PPDate:        ParseDate(slot(slotPPDate)),
		CostTax:       ParseMoney(slot(slotCostTax)),
		Cost:          ParseMoney(slot(slotCost)),
		IsPP:          isPP || frag.PP,
		IsFC:          frag.FreeAndClear,
		IsDuplicate:   len(frag.Addresses) > 1,
		Address:       cleanAddresses(frag.Addresses),
	}
	if IsTaxLien(slot(slotSaleBasis)) {
		l.SaleType = model.SaleTypeTaxLien
	}
	l.IsBank = IsBankPlaintiff(l.PlaintiffName)

	if frag.Len() >= layout.MinFullSlots {
		l.AuctionNumber = slot(slotAuctionNum)
		l.DefendantName = slot(slotDefendant)
		l.Municipality = strings.Replace(slot(slotMunicipality), municipalityPrefix, "", 1)
		l.ReasonForPP = slot(slotReasonForPP)
		l.Checks = model.Checks{
			SVS:       slot(slotCheckSVS) == "Y",
			Check3129: slot(slotCheck3129) == "Y",
			OK:        slot(slotCheckOK) == "Y",
		}
	} else {
		// The address array is the final slot, so the tail fields sit at
		// Len-4..Len-2, i.e. len(Slots)-3..len(Slots)-1.
		n := len(frag.Slots)
		l.AuctionNumber = slot(n - 3)
		l.DefendantName = slot(n - 2)
		l.Municipality = strings.Replace(slot(n-1), municipalityPrefix, "", 1)
		if slotReasonForPP < n-3 {
			l.ReasonForPP = slot(slotReasonForPP)
		}
	}

	if l.AuctionNumber == "" {
		zap.L().Warn("normalize: discarding fragment without auction number",
			zap.String("docket_number", l.DocketNumber),
			zap.Int("page", frag.Page),
			zap.Int("slots", frag.Len()),
			zap.Strings("partial", frag.Slots),
		)
		return nil, false
	}
	return l, true
}

// NormalizeAll normalizes every fragment of a parse result, dropping the
// ones without an auction number.
func NormalizeAll(res *parser.Result, isPP bool, layout parser.Layout) []model.Listing {
	if res == nil {
		return nil
	}
	out := make([]model.Listing, 0, len(res.Fragments))
	for _, frag := range res.Fragments {
		if l, ok := Normalize(frag, res.AuctionID, isPP, layout); ok {
			out = append(out, *l)
		}
	}
	return out
}

func cleanAddresses(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, strings.ReplaceAll(a, ",", ""))
	}
	return out
}

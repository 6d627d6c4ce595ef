package enrich

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/normalize"
	"github.com/sells-group/sheriff-sales/internal/resilience"
	"github.com/sells-group/sheriff-sales/internal/store"
	"github.com/sells-group/sheriff-sales/pkg/valuation"
)

var (
	zipRe        = regexp.MustCompile(`\b\d{5}\b`)
	addressNoise = strings.NewReplacer(
		"undefined", "",
		"&", "",
		"VACANT LAND", "",
		"AVENEUE", "Ave",
	)
)

// CleanAddress strips known noise and the ZIP code from a raw address line.
// It returns the cleaned line and the ZIP that was removed, if any.
func CleanAddress(raw string) (line, zip string) {
	line = addressNoise.Replace(raw)
	if zip = zipRe.FindString(line); zip != "" {
		line = strings.Replace(line, zip, "", 1)
	}
	return strings.Join(strings.Fields(line), " "), zip
}

// ValuationStatus resolves the valuation enrichment status of l as of now.
// Listings written before per-source tracking fall back to the last
// valuation timestamp.
func ValuationStatus(l *model.Listing, now time.Time) model.EnrichmentStatus {
	st := l.Enrichment.Valuation.Effective(now)
	if st != model.StatusNotAttempted {
		return st
	}
	if l.ZillowData != nil && l.ZillowData.LastZillowUpdate != nil {
		if model.SameDay(*l.ZillowData.LastZillowUpdate, now) {
			return model.StatusValid
		}
		return model.StatusStale
	}
	return model.StatusNotAttempted
}

// needsValuation reports whether l has not been checked today.
func needsValuation(l *model.Listing, now time.Time) bool {
	switch ValuationStatus(l, now) {
	case model.StatusValid, model.StatusFailed:
		return false
	}
	return true
}

// ApplyValuation layers bundle b onto l. An empty bundle flags the listing
// invalid unless a valuation id is already on file, and reports false.
func ApplyValuation(l *model.Listing, b *valuation.Bundle, now time.Time) bool {
	if b.Empty() {
		if l.ZillowData == nil || l.ZillowData.ZillowID == "" {
			l.ZillowInvalid = true
		}
		l.Enrichment.Mark(model.SourceValuation, model.StatusFailed, now)
		return false
	}

	zd := l.ZillowData
	if zd == nil {
		zd = &model.ZillowData{}
	}
	z, p, tx := b.Zestimate, b.Parcel, b.Transaction
	building := p.FirstBuilding()

	zd.ZillowEstimate, zd.ZillowRentalEstimate, zd.ZillowLink = nil, nil, ""
	if z != nil {
		zd.ZillowEstimate = z.Zestimate
		zd.ZillowRentalEstimate = z.RentalEstimate()
		zd.ZillowLink = z.ZillowURL
	}

	zd.Rooms, zd.Bath, zd.YearBuilt = nil, nil, nil
	if building != nil {
		zd.Rooms = building.Bedrooms
		zd.Bath = building.Bath()
		zd.YearBuilt = building.YearBuilt
	}

	zd.Sqft, zd.APN, zd.ZillowAddress = nil, "", ""
	if p != nil {
		zd.Sqft = p.LotSizeSquareFeet
		zd.APN = p.APN
		zd.ZillowAddress = p.Address.Full
	}

	switch {
	case z != nil && z.Zpid != "":
		zd.ZillowID = string(z.Zpid)
	case p != nil && p.Zpid != "":
		zd.ZillowID = string(p.Zpid)
	}

	zd.TaxAssessment, zd.LastSoldPrice, zd.UnpaidBalance, zd.LastSoldDate = nil, nil, nil, nil
	zd.LenderName = ""
	if tx != nil {
		zd.TaxAssessment = tx.TotalTransferTax
		zd.LastSoldPrice = tx.SalesPrice
		zd.UnpaidBalance = tx.UnpaidBalance
		zd.LastSoldDate = parseBridgeDate(tx.SoldDate())
		zd.LenderName = tx.Lender()
	}

	if lon, lat, ok := p.LonLat(); ok {
		l.Coords = &model.Coords{Latitude: lat, Longitude: lon}
	}

	stamp := now
	zd.LastZillowUpdate = &stamp
	l.ZillowData = zd
	l.ZillowInvalid = false
	l.Enrichment.Mark(model.SourceValuation, model.StatusValid, now)
	return true
}

func parseBridgeDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t
	}
	return normalize.ParseDate(s)
}

func (o *Orchestrator) runValuation(ctx context.Context, auctionID string, pr *PassReport) {
	listings, ok := o.listings(ctx, store.ListingFilter{AuctionID: auctionID}, pr)
	if !ok {
		return
	}
	now := o.now()
	breaker := o.breakers.Get(resilience.ServiceValuation)
	o.creds.Reset()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	var mu sync.Mutex

	for i := range listings {
		l := &listings[i]
		line, zip := CleanAddress(l.PrimaryAddress())
		if line == "" {
			l.ZillowInvalid = true
			l.Enrichment.Mark(model.SourceValuation, model.StatusFailed, now)
			saved := o.save(ctx, l)
			mu.Lock()
			pr.Invalid++
			if !saved {
				pr.Failed++
			}
			mu.Unlock()
			continue
		}
		mu.Lock()
		if !needsValuation(l, now) {
			pr.Skipped++
			mu.Unlock()
			continue
		}
		pr.Attempted++
		mu.Unlock()

		q := valuation.Query{Address: line, CityStateZip: zip}
		g.Go(func() error {
			b, err := o.creds.Do(gCtx, func(ctx context.Context, token string) (*valuation.Bundle, error) {
				return resilience.Call(ctx, breaker, o.retry, func(ctx context.Context) (*valuation.Bundle, error) {
					return o.valuation.Lookup(ctx, token, q)
				})
			})

			if errors.Is(err, ErrNoCredential) {
				mu.Lock()
				pr.Failed++
				mu.Unlock()
				return nil
			}

			// An unreachable upstream leaves the status untouched so the
			// listing is retried by the next cycle.
			if err != nil {
				zap.L().Warn("enrich: valuation lookup failed",
					zap.String("auction_number", l.AuctionNumber),
					zap.Error(err),
				)
				mu.Lock()
				pr.Failed++
				mu.Unlock()
				return nil
			}

			updated := ApplyValuation(l, b, now)
			saved := o.save(gCtx, l)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case !saved:
				pr.Failed++
			case updated:
				pr.Updated++
			default:
				pr.Invalid++
			}
			return nil
		})
	}
	_ = g.Wait()
}

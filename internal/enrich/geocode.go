package enrich

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/resilience"
	"github.com/sells-group/sheriff-sales/internal/store"
	"github.com/sells-group/sheriff-sales/pkg/geocode"
)

// needsGeocode selects listings the valuation pass could not place.
func needsGeocode(l *model.Listing) bool {
	return l.ZillowInvalid && l.Coords == nil && strings.TrimSpace(l.PrimaryAddress()) != ""
}

// AcceptCandidate returns the first candidate when its ZIP occurs in the
// listing's primary address. Anything else is treated as a mismatch.
func AcceptCandidate(l *model.Listing, cands []geocode.Candidate) (geocode.Candidate, bool) {
	if len(cands) == 0 {
		return geocode.Candidate{}, false
	}
	c := cands[0]
	if c.Zipcode == "" || !strings.Contains(l.PrimaryAddress(), c.Zipcode) {
		return geocode.Candidate{}, false
	}
	return c, true
}

func (o *Orchestrator) runGeocode(ctx context.Context, auctionID string, pr *PassReport) {
	listings, ok := o.listings(ctx, store.ListingFilter{AuctionID: auctionID}, pr)
	if !ok {
		return
	}
	now := o.now()
	breaker := o.breakers.Get(resilience.ServiceGeocode)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	var mu sync.Mutex

	for i := range listings {
		l := &listings[i]
		if !needsGeocode(l) {
			continue
		}
		mu.Lock()
		pr.Attempted++
		mu.Unlock()

		g.Go(func() error {
			cands, err := resilience.Call(gCtx, breaker, o.retry, func(ctx context.Context) ([]geocode.Candidate, error) {
				return o.geocoder.Geocode(ctx, l.PrimaryAddress())
			})
			if err != nil {
				zap.L().Warn("enrich: geocode failed",
					zap.String("auction_number", l.AuctionNumber),
					zap.Error(err),
				)
				mu.Lock()
				pr.Failed++
				mu.Unlock()
				return nil
			}

			c, accepted := AcceptCandidate(l, cands)
			if !accepted {
				zap.L().Debug("enrich: geocode candidate rejected",
					zap.String("auction_number", l.AuctionNumber),
					zap.String("address", l.PrimaryAddress()),
					zap.Int("candidates", len(cands)),
				)
				mu.Lock()
				pr.Invalid++
				mu.Unlock()
				return nil
			}

			l.Coords = &model.Coords{Latitude: c.Latitude, Longitude: c.Longitude}
			if c.FormattedAddress != "" {
				l.Address[0] = c.FormattedAddress
			}
			l.Enrichment.Mark(model.SourceGeocode, model.StatusValid, now)
			saved := o.save(gCtx, l)

			mu.Lock()
			defer mu.Unlock()
			if saved {
				pr.Updated++
			} else {
				pr.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Package reconcile merges normalized listing batches into the store and
// resolves the auction-level config values derived from them.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/store"
)

const defaultConcurrency = 8

// ppDateLayout is the comparable string form used for the postponement mode.
const ppDateLayout = time.RFC3339

// Result is the outcome of one reconciliation batch.
type Result struct {
	AuctionID string          `json:"auction_id"`
	Count     int             `json:"count"`
	Listings  []model.Listing `json:"listings"`
}

// Reconciler upserts listing batches and maintains the current auction config.
type Reconciler struct {
	store       store.Store
	concurrency int
	now         func() time.Time
}

// New creates a Reconciler writing through st. A non-positive concurrency
// falls back to the default bound.
func New(st store.Store, concurrency int) *Reconciler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Reconciler{store: st, concurrency: concurrency, now: time.Now}
}

// SetClock overrides the time source.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Reconcile upserts every listing by auction number and records the batch's
// auction id as current when it changed. Per-listing write failures are logged
// and leave the listing out of the result.
func (r *Reconciler) Reconcile(ctx context.Context, listings []model.Listing) (*Result, error) {
	res := &Result{AuctionID: BatchAuctionID(listings), Listings: []model.Listing{}}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var mu sync.Mutex
	saved := make([]*model.Listing, len(listings))

	for i := range listings {
		l := listings[i].Clone()
		g.Go(func() error {
			if err := r.upsert(gCtx, &l); err != nil {
				zap.L().Error("reconcile: upsert listing failed",
					zap.String("auction_number", l.AuctionNumber),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			saved[i] = &l
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, eris.Wrap(err, "reconcile: batch interrupted")
	}

	for _, l := range saved {
		if l != nil {
			res.Listings = append(res.Listings, *l)
		}
	}
	res.Count = len(res.Listings)

	if res.AuctionID != "" {
		if err := r.saveCurrentAuctionID(ctx, res.AuctionID); err != nil {
			zap.L().Error("reconcile: save current auction id failed",
				zap.String("auction_id", res.AuctionID),
				zap.Error(err),
			)
		}
	}

	zap.L().Info("reconcile: batch complete",
		zap.String("auction_id", res.AuctionID),
		zap.Int("received", len(listings)),
		zap.Int("saved", res.Count),
	)
	return res, nil
}

// upsert replaces the parsed fields of an existing listing while carrying
// over everything enrichment has layered onto it.
func (r *Reconciler) upsert(ctx context.Context, l *model.Listing) error {
	existing, err := r.store.GetListing(ctx, l.AuctionNumber)
	switch {
	case err == nil:
		carryEnrichment(existing, l)
	case errors.Is(err, store.ErrNotFound):
	default:
		return eris.Wrapf(err, "reconcile: load listing %s", l.AuctionNumber)
	}
	return r.store.UpsertListing(ctx, l)
}

func carryEnrichment(from *model.Listing, to *model.Listing) {
	if to.ZillowData == nil {
		to.ZillowData = from.ZillowData
	}
	if to.Coords == nil {
		to.Coords = from.Coords
	}
	if to.Judgment == nil {
		to.Judgment = from.Judgment
	}
	if to.FirmName == "" && to.ContactEmail == "" {
		to.FirmName = from.FirmName
		to.ContactEmail = from.ContactEmail
	}
	to.ZillowInvalid = to.ZillowInvalid || from.ZillowInvalid
	to.Enrichment = from.Enrichment
	to.CreatedAt = from.CreatedAt
}

func (r *Reconciler) saveCurrentAuctionID(ctx context.Context, auctionID string) error {
	current, err := r.store.GetConfig(ctx, model.ConfigCurrentAuctionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return eris.Wrap(err, "reconcile: read current auction id")
	}
	if current == auctionID {
		return nil
	}
	if err := r.store.SetConfig(ctx, model.ConfigCurrentAuctionID, auctionID); err != nil {
		return eris.Wrap(err, "reconcile: write current auction id")
	}
	zap.L().Info("reconcile: current auction changed",
		zap.String("from", current),
		zap.String("to", auctionID),
	)
	return nil
}

// CurrentAuctionID returns the stored current auction id, or "" when none
// has been recorded.
func (r *Reconciler) CurrentAuctionID(ctx context.Context) (string, error) {
	id, err := r.store.GetConfig(ctx, model.ConfigCurrentAuctionID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "reconcile: current auction id")
	}
	return id, nil
}

// ResolveGlobalPostponementDate computes the most common postponement date
// across the auction's postponed listings and persists it. Any failure along
// the way yields the current time.
func (r *Reconciler) ResolveGlobalPostponementDate(ctx context.Context, auctionID string) time.Time {
	log := zap.L().With(zap.String("auction_id", auctionID))

	if _, err := r.store.GetConfig(ctx, model.ConfigGlobalPPDate); err != nil {
		log.Warn("reconcile: postponement config unavailable", zap.Error(err))
		return r.now()
	}

	listings, err := r.store.ListListings(ctx, store.ListingFilter{AuctionID: auctionID, PPOnly: true})
	if err != nil {
		log.Warn("reconcile: load postponed listings", zap.Error(err))
		return r.now()
	}

	dates := make([]string, 0, len(listings))
	for _, l := range listings {
		if l.IsPP && l.PPDate != nil {
			dates = append(dates, l.PPDate.UTC().Format(ppDateLayout))
		}
	}

	mode, ok := Mode(dates)
	if !ok {
		log.Info("reconcile: no postponement dates, using now")
		return r.now()
	}
	resolved, err := time.Parse(ppDateLayout, mode)
	if err != nil {
		log.Warn("reconcile: parse postponement mode", zap.String("value", mode), zap.Error(err))
		return r.now()
	}

	if err := r.store.SetConfig(ctx, model.ConfigGlobalPPDate, mode); err != nil {
		log.Warn("reconcile: persist global postponement date", zap.Error(err))
	}
	return resolved
}

// Mode returns the most frequent value, breaking ties in favor of the value
// seen first. It reports false for an empty input.
func Mode(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	counts := make(map[string]int, len(values))
	best, bestCount := "", 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best, true
}

// BatchAuctionID returns the first non-empty auction id in the batch.
func BatchAuctionID(listings []model.Listing) string {
	for _, l := range listings {
		if l.AuctionID != "" {
			return l.AuctionID
		}
	}
	return ""
}

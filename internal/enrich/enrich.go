// Package enrich layers valuation, judgment, law-firm and geocoding data onto
// reconciled listings. Each pass is optional and isolated from the others.
package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/resilience"
	"github.com/sells-group/sheriff-sales/internal/store"
	"github.com/sells-group/sheriff-sales/pkg/geocode"
	"github.com/sells-group/sheriff-sales/pkg/valuation"
)

// Pass names, in run order.
const (
	PassValuation = "valuation"
	PassJudgments = "judgments"
	PassLawFirms  = "law_firms"
	PassGeocode   = "geocode"
)

const defaultConcurrency = 10

// PassReport counts what one pass did.
type PassReport struct {
	Pass      string `json:"pass"`
	Ran       bool   `json:"ran"`
	Attempted int    `json:"attempted"`
	Updated   int    `json:"updated"`
	Invalid   int    `json:"invalid"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// Report collects the pass reports of one Run.
type Report struct {
	AuctionID string       `json:"auction_id"`
	Passes    []PassReport `json:"passes"`
}

// Pass returns the report for the named pass.
func (r *Report) Pass(name string) (PassReport, bool) {
	for _, p := range r.Passes {
		if p.Pass == name {
			return p, true
		}
	}
	return PassReport{}, false
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithValuation enables the valuation pass using the given credentials.
func WithValuation(client valuation.Client, tokens []string) Option {
	return func(o *Orchestrator) {
		o.valuation = client
		o.creds = NewCredentialPool(tokens)
	}
}

// WithJudgments enables the judgment pass.
func WithJudgments(src JudgmentSource) Option {
	return func(o *Orchestrator) {
		o.judgments = src
	}
}

// WithLawFirms enables the law-firm pass against a fixed table.
func WithLawFirms(firms []LawFirm) Option {
	return func(o *Orchestrator) {
		o.lawFirms = func() ([]LawFirm, error) { return firms, nil }
	}
}

// WithLawFirmFile enables the law-firm pass against the workbook at path,
// re-read on every Run.
func WithLawFirmFile(path, sheet string) Option {
	return func(o *Orchestrator) {
		o.lawFirms = func() ([]LawFirm, error) { return LoadLawFirms(path, sheet) }
	}
}

// WithGeocoder enables the geocoding fallback pass.
func WithGeocoder(gc geocode.Client) Option {
	return func(o *Orchestrator) {
		o.geocoder = gc
	}
}

// WithConcurrency bounds concurrent per-listing upstream calls.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithResilience wraps upstream calls in the given retry policy and breakers.
func WithResilience(p resilience.RetryPolicy, b *resilience.Breakers) Option {
	return func(o *Orchestrator) {
		o.retry = p
		o.breakers = b
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator runs the enrichment passes for one auction.
type Orchestrator struct {
	store store.Store

	valuation valuation.Client
	creds     *CredentialPool
	judgments JudgmentSource
	lawFirms  func() ([]LawFirm, error)
	geocoder  geocode.Client

	concurrency int
	retry       resilience.RetryPolicy
	breakers    *resilience.Breakers
	now         func() time.Time
}

// New creates an Orchestrator writing through st.
func New(st store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		concurrency: defaultConcurrency,
		retry:       resilience.RetryPolicy{MaxAttempts: 1},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Credentials exposes the valuation credential pool, nil when the valuation
// pass is disabled.
func (o *Orchestrator) Credentials() *CredentialPool {
	return o.creds
}

// Run executes valuation, judgments, law firms and geocoding in that order.
// A failing pass is recorded in the report and never stops the next one.
func (o *Orchestrator) Run(ctx context.Context, auctionID string) *Report {
	rep := &Report{AuctionID: auctionID}
	passes := []struct {
		name    string
		enabled bool
		run     func(context.Context, string, *PassReport)
	}{
		{PassValuation, o.valuation != nil && o.creds != nil, o.runValuation},
		{PassJudgments, o.judgments != nil, o.runJudgments},
		{PassLawFirms, o.lawFirms != nil, o.runLawFirms},
		{PassGeocode, o.geocoder != nil, o.runGeocode},
	}

	for _, p := range passes {
		pr := PassReport{Pass: p.name}
		if p.enabled && ctx.Err() == nil {
			pr.Ran = true
			start := time.Now()
			p.run(ctx, auctionID, &pr)
			zap.L().Info("enrich: pass complete",
				zap.String("auction_id", auctionID),
				zap.String("pass", p.name),
				zap.Int("attempted", pr.Attempted),
				zap.Int("updated", pr.Updated),
				zap.Int("invalid", pr.Invalid),
				zap.Int("failed", pr.Failed),
				zap.Int("skipped", pr.Skipped),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
		rep.Passes = append(rep.Passes, pr)
	}
	return rep
}

// listings loads the auction's listings, recording a load failure on pr.
func (o *Orchestrator) listings(ctx context.Context, filter store.ListingFilter, pr *PassReport) ([]model.Listing, bool) {
	ls, err := o.store.ListListings(ctx, filter)
	if err != nil {
		zap.L().Warn("enrich: load listings", zap.String("pass", pr.Pass), zap.Error(err))
		pr.Error = err.Error()
		return nil, false
	}
	return ls, true
}

// save writes l back, counting a failed write on pr. Callers serialize access
// to pr.
func (o *Orchestrator) save(ctx context.Context, l *model.Listing) bool {
	if err := o.store.UpsertListing(ctx, l); err != nil {
		zap.L().Error("enrich: save listing",
			zap.String("auction_number", l.AuctionNumber),
			zap.Error(err),
		)
		return false
	}
	return true
}

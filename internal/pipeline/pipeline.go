// Package pipeline runs one end-to-end auction cycle: download the published
// documents, parse and reconcile the listings, enrich them and redraw the map.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sheriff-sales/internal/enrich"
	"github.com/sells-group/sheriff-sales/internal/fetcher"
	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/normalize"
	"github.com/sells-group/sheriff-sales/internal/parser"
	"github.com/sells-group/sheriff-sales/internal/reconcile"
	"github.com/sells-group/sheriff-sales/internal/render"
	"github.com/sells-group/sheriff-sales/internal/store"
)

// Phase names.
const (
	PhaseFetch     = "fetch"
	PhaseParse     = "parse"
	PhaseReconcile = "reconcile"
	PhaseEnrich    = "enrich"
	PhaseRender    = "render"
)

// ErrNoAuction is returned when no current auction has been recorded yet.
var ErrNoAuction = eris.New("pipeline: no current auction")

// Enricher runs the enrichment passes for an auction.
type Enricher interface {
	Run(ctx context.Context, auctionID string) *enrich.Report
}

// Source is one published document.
type Source struct {
	Name string
	URL  string
	PP   bool
}

// Sources lists the documents of a cycle and where to keep their downloads.
type Sources struct {
	Documents []Source
	WorkDir   string
}

// DefaultSources returns the bid list and postponement documents.
func DefaultSources(bidListURL, postponementURL, workDir string) Sources {
	var docs []Source
	if bidListURL != "" {
		docs = append(docs, Source{Name: "bid_list", URL: bidListURL})
	}
	if postponementURL != "" {
		docs = append(docs, Source{Name: "postponements", URL: postponementURL, PP: true})
	}
	return Sources{Documents: docs, WorkDir: workDir}
}

// RunResult is the outcome of one cycle.
type RunResult struct {
	Run          model.Run       `json:"run"`
	AuctionID    string          `json:"auction_id"`
	GlobalPPDate *time.Time      `json:"global_pp_date,omitempty"`
	Listings     []model.Listing `json:"listings"`
	Enrichment   *enrich.Report  `json:"enrichment,omitempty"`
	Render       *render.Output  `json:"render,omitempty"`
}

// Cycle wires the pipeline stages together.
type Cycle struct {
	store      store.Store
	fetcher    fetcher.Fetcher
	extractor  parser.Extractor
	layout     parser.Layout
	reconciler *reconcile.Reconciler
	enricher   Enricher
	renderer   *render.Renderer
	sources    Sources
	timeout    time.Duration
}

// Deps are the collaborators of a Cycle. Enricher may be nil.
type Deps struct {
	Store      store.Store
	Fetcher    fetcher.Fetcher
	Extractor  parser.Extractor
	Layout     parser.Layout
	Reconciler *reconcile.Reconciler
	Enricher   Enricher
	Renderer   *render.Renderer
	Sources    Sources
	// Timeout bounds a whole cycle; zero means no deadline.
	Timeout time.Duration
}

// New creates a Cycle.
func New(d Deps) *Cycle {
	return &Cycle{
		store:      d.Store,
		fetcher:    d.Fetcher,
		extractor:  d.Extractor,
		layout:     d.Layout,
		reconciler: d.Reconciler,
		enricher:   d.Enricher,
		renderer:   d.Renderer,
		sources:    d.Sources,
		timeout:    d.Timeout,
	}
}

type document struct {
	src Source
	doc *parser.Document
}

// Run executes one full cycle. Failure to obtain any source document yields
// an empty result rather than an error; later stages degrade per listing.
func (c *Cycle) Run(ctx context.Context) (*RunResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result := &RunResult{
		Run: model.Run{
			ID:        uuid.NewString(),
			Status:    model.RunStatusRunning,
			StartedAt: time.Now().UTC(),
		},
		Listings: []model.Listing{},
	}
	log := zap.L().With(zap.String("run_id", result.Run.ID))
	log.Info("pipeline: cycle starting", zap.Int("documents", len(c.sources.Documents)))

	trackPhase := func(name string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, err := fn()
		pr := model.PhaseResult{
			Name:     name,
			Status:   model.PhaseStatusComplete,
			Duration: time.Since(start).Milliseconds(),
			Metadata: meta,
		}
		if err != nil {
			pr.Status = model.PhaseStatusFailed
			pr.Error = err.Error()
			log.Error("pipeline: phase failed", zap.String("phase", name), zap.Int64("duration_ms", pr.Duration), zap.Error(err))
		} else {
			log.Info("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", pr.Duration))
		}
		result.Run.Phases = append(result.Run.Phases, pr)
		return err
	}
	finish := func(status model.RunStatus, err error) {
		now := time.Now().UTC()
		result.Run.Status = status
		result.Run.FinishedAt = &now
		if err != nil {
			result.Run.Error = err.Error()
		}
		log.Info("pipeline: cycle finished",
			zap.String("status", string(status)),
			zap.String("auction_id", result.AuctionID),
			zap.Int("listings", len(result.Listings)),
		)
	}

	// ===== Fetch + extract =====
	var docs []document
	_ = trackPhase(PhaseFetch, func() (map[string]any, error) {
		docs = c.fetchDocuments(ctx)
		if len(docs) == 0 {
			return map[string]any{"documents": 0}, eris.New("pipeline: no source documents available")
		}
		return map[string]any{"documents": len(docs)}, nil
	})
	if len(docs) == 0 {
		finish(model.RunStatusFailed, nil)
		return result, nil
	}

	// ===== Parse + normalize =====
	var listings []model.Listing
	_ = trackPhase(PhaseParse, func() (map[string]any, error) {
		var anomalies int
		listings, anomalies = c.parseDocuments(docs)
		return map[string]any{"listings": len(listings), "anomalies": anomalies}, nil
	})
	if len(listings) == 0 {
		finish(model.RunStatusComplete, nil)
		return result, nil
	}

	// ===== Reconcile =====
	var rec *reconcile.Result
	err := trackPhase(PhaseReconcile, func() (map[string]any, error) {
		var err error
		rec, err = c.reconciler.Reconcile(ctx, listings)
		if err != nil {
			return nil, err
		}
		return map[string]any{"upserted": rec.Count}, nil
	})
	if err != nil {
		finish(model.RunStatusFailed, err)
		return result, err
	}
	result.AuctionID = rec.AuctionID
	result.Run.AuctionID = rec.AuctionID

	// ===== Enrich =====
	if c.enricher != nil && rec.AuctionID != "" {
		_ = trackPhase(PhaseEnrich, func() (map[string]any, error) {
			result.Enrichment = c.enricher.Run(ctx, rec.AuctionID)
			meta := make(map[string]any, len(result.Enrichment.Passes))
			for _, p := range result.Enrichment.Passes {
				meta[p.Pass] = p.Updated
			}
			return meta, nil
		})
	}

	// ===== Render =====
	_ = trackPhase(PhaseRender, func() (map[string]any, error) {
		out, ppDate, err := c.RenderCurrent(ctx)
		if err != nil {
			return nil, err
		}
		result.Render = out
		result.GlobalPPDate = &ppDate
		return map[string]any{"placemarks": out.Placemarks}, nil
	})

	if rec.AuctionID != "" {
		stored, err := c.store.ListListings(ctx, store.ListingFilter{AuctionID: rec.AuctionID})
		if err != nil {
			log.Warn("pipeline: reload listings", zap.Error(err))
			result.Listings = rec.Listings
		} else {
			result.Listings = stored
		}
	} else {
		result.Listings = rec.Listings
	}

	finish(model.RunStatusComplete, nil)
	return result, nil
}

// RenderCurrent redraws the map for the current auction after recomputing
// the global postponement date.
func (c *Cycle) RenderCurrent(ctx context.Context) (*render.Output, time.Time, error) {
	auctionID, err := c.reconciler.CurrentAuctionID(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	if auctionID == "" {
		return nil, time.Time{}, ErrNoAuction
	}
	ppDate := c.reconciler.ResolveGlobalPostponementDate(ctx, auctionID)
	out, err := c.renderer.Render(ctx, auctionID, ppDate)
	if err != nil {
		return nil, ppDate, err
	}
	return out, ppDate, nil
}

// fetchDocuments downloads and extracts every source concurrently, keeping
// source order. A source that fails is logged and left out.
func (c *Cycle) fetchDocuments(ctx context.Context) []document {
	docs := make([]*parser.Document, len(c.sources.Documents))

	g, gCtx := errgroup.WithContext(ctx)
	for i, src := range c.sources.Documents {
		g.Go(func() error {
			doc, err := c.fetchDocument(gCtx, src)
			if err != nil {
				zap.L().Warn("pipeline: source unavailable",
					zap.String("source", src.Name),
					zap.String("url", src.URL),
					zap.Error(err),
				)
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	_ = g.Wait()

	out := make([]document, 0, len(docs))
	for i, d := range docs {
		if d != nil {
			out = append(out, document{src: c.sources.Documents[i], doc: d})
		}
	}
	return out
}

func (c *Cycle) fetchDocument(ctx context.Context, src Source) (*parser.Document, error) {
	pdfPath := filepath.Join(c.sources.WorkDir, src.Name+".pdf")
	n, err := c.fetcher.DownloadToFile(ctx, src.URL, pdfPath)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("pipeline: downloaded source", zap.String("source", src.Name), zap.Int64("bytes", n))

	doc, err := c.extractor.Extract(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	if src.PP {
		doc.MarkPostponement()
	}
	return doc, nil
}

// parseDocuments parses and normalizes each document, bid list first.
func (c *Cycle) parseDocuments(docs []document) ([]model.Listing, int) {
	var listings []model.Listing
	var anomalies int
	for _, d := range docs {
		res := parser.Parse(d.doc, c.layout)
		anomalies += len(res.Anomalies)
		if err := res.LayoutBreak(); err != nil {
			zap.L().Error("pipeline: parser compatibility break",
				zap.String("source", d.src.Name),
				zap.Error(err),
			)
			continue
		}
		got := normalize.NormalizeAll(res, d.src.PP, c.layout)
		zap.L().Info("pipeline: parsed source",
			zap.String("source", d.src.Name),
			zap.String("auction_id", res.AuctionID),
			zap.Int("fragments", len(res.Fragments)),
			zap.Int("listings", len(got)),
			zap.Int("anomalies", len(res.Anomalies)),
		)
		listings = append(listings, got...)
	}
	return listings, anomalies
}

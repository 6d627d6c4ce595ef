package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/enrich"
	"github.com/sells-group/sheriff-sales/internal/fetcher"
	"github.com/sells-group/sheriff-sales/internal/parser"
	"github.com/sells-group/sheriff-sales/internal/pipeline"
	"github.com/sells-group/sheriff-sales/internal/reconcile"
	"github.com/sells-group/sheriff-sales/internal/render"
	"github.com/sells-group/sheriff-sales/internal/resilience"
	"github.com/sells-group/sheriff-sales/internal/store"
	"github.com/sells-group/sheriff-sales/pkg/geocode"
	"github.com/sells-group/sheriff-sales/pkg/valuation"
)

// pipelineEnv holds everything the run, render, serve and schedule commands
// share.
type pipelineEnv struct {
	Store      store.Store
	Reconciler *reconcile.Reconciler
	Renderer   *render.Renderer
	Enricher   *enrich.Orchestrator
	Cycle      *pipeline.Cycle
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline validates the config for mode, opens the store and wires
// every stage of the cycle. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	layout, err := parser.LayoutFromConfig(cfg.Layout)
	if err != nil {
		return nil, eris.Wrap(err, "load layout")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	policy := resilience.PolicyFromConfig(cfg.Retry)
	breakers := resilience.NewBreakers(resilience.SettingsFromConfig(cfg.Circuit))

	docs := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		RateLimit: cfg.Sources.RateLimit,
		Retry:     policy,
		Breaker:   breakers.Get(resilience.ServiceDocuments),
	})

	rec := reconcile.New(st, cfg.Pipeline.UpsertConcurrency)
	rnd := render.New(st, render.Options{
		KMLPath:            cfg.Render.KMLPath,
		GeoJSONPath:        cfg.Render.GeoJSONPath,
		ExpensiveThreshold: cfg.Render.ExpensiveThreshold,
	})
	orch := enrich.New(st, enrichOptions(docs, policy, breakers)...)

	workDir := cfg.Sources.WorkDir
	cycle := pipeline.New(pipeline.Deps{
		Store:      st,
		Fetcher:    docs,
		Extractor:  parser.NewPDF2JSON(cfg.Sources.PDF2JSONPath, filepath.Join(workDir, "json")),
		Layout:     layout,
		Reconciler: rec,
		Enricher:   orch,
		Renderer:   rnd,
		Sources:    pipeline.DefaultSources(cfg.Sources.BidListURL, cfg.Sources.PostponementURL, workDir),
		Timeout:    time.Duration(cfg.Pipeline.CycleTimeoutMins) * time.Minute,
	})

	return &pipelineEnv{
		Store:      st,
		Reconciler: rec,
		Renderer:   rnd,
		Enricher:   orch,
		Cycle:      cycle,
	}, nil
}

// enrichOptions configures the passes that have what they need. A pass
// without credentials or source data is left out and reported as not run.
func enrichOptions(docs fetcher.Fetcher, policy resilience.RetryPolicy, breakers *resilience.Breakers) []enrich.Option {
	opts := []enrich.Option{
		enrich.WithConcurrency(cfg.Pipeline.EnrichConcurrency),
		enrich.WithResilience(policy, breakers),
	}

	if len(cfg.Valuation.Tokens) > 0 {
		client := valuation.NewClient(
			valuation.WithBaseURL(cfg.Valuation.BaseURL),
			valuation.WithTimeout(time.Duration(cfg.Valuation.TimeoutSecs)*time.Second),
			valuation.WithRateLimit(cfg.Valuation.RateLimit),
		)
		opts = append(opts, enrich.WithValuation(client, cfg.Valuation.Tokens))
	} else {
		zap.L().Warn("no valuation tokens configured, valuation pass disabled")
	}

	if cfg.Sources.JudgmentsURL != "" {
		opts = append(opts, enrich.WithJudgments(&enrich.HTTPJudgments{
			Fetcher: docs,
			URL:     cfg.Sources.JudgmentsURL,
		}))
	}

	if cfg.LawFirms.Path != "" {
		opts = append(opts, enrich.WithLawFirmFile(cfg.LawFirms.Path, cfg.LawFirms.Sheet))
	}

	if gc := geocoder(); gc != nil {
		opts = append(opts, enrich.WithGeocoder(gc))
	}

	return opts
}

// geocoder builds the provider cascade: Google when a key is set, then the
// Census geocoder when enabled. Returns nil when neither is available.
func geocoder() geocode.Client {
	timeout := time.Duration(cfg.Geocode.TimeoutSecs) * time.Second
	gopts := []geocode.Option{
		geocode.WithTimeout(timeout),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
	}

	var cascade geocode.Cascade
	if cfg.Geocode.GoogleAPIKey != "" {
		cascade = append(cascade, geocode.NewGoogle(cfg.Geocode.GoogleAPIKey, gopts...))
	}
	if cfg.Geocode.CensusEnabled {
		cascade = append(cascade, geocode.NewCensus(gopts...))
	}
	switch len(cascade) {
	case 0:
		zap.L().Warn("no geocoder configured, geocode pass disabled")
		return nil
	case 1:
		return cascade[0]
	default:
		return cascade
	}
}

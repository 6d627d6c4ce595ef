package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheriff-sales/internal/config"
	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/parser"
	"github.com/sells-group/sheriff-sales/internal/pipeline"
	"github.com/sells-group/sheriff-sales/internal/render"
	"github.com/sells-group/sheriff-sales/pkg/geocode"
)

var fixturePath = filepath.Join("..", "internal", "parser", "testdata", "two_page.json")

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "parse", "render", "serve", "schedule", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sheriff-sales", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		def  string
	}{
		{"serve", "port", "0"},
		{"serve", "schedule", "false"},
		{"schedule", "now", "false"},
		{"parse", "file", ""},
		{"parse", "pp", "false"},
		{"run", "json", "false"},
	}
	for _, tt := range tests {
		c, _, err := rootCmd.Find([]string{tt.cmd})
		require.NoError(t, err)
		f := c.Flags().Lookup(tt.flag)
		require.NotNil(t, f, "%s should have --%s", tt.cmd, tt.flag)
		assert.Equal(t, tt.def, f.DefValue)
	}
}

func TestParseDocument(t *testing.T) {
	out, err := parseDocument(fixturePath, false, parser.DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, "072020", out.AuctionID)
	require.Len(t, out.Listings, 2)
	for _, l := range out.Listings {
		assert.False(t, l.IsPP)
		assert.Equal(t, "072020", l.AuctionID)
	}

	pp, err := parseDocument(fixturePath, true, parser.DefaultLayout())
	require.NoError(t, err)
	for _, l := range pp.Listings {
		assert.True(t, l.IsPP)
	}
}

func TestParseDocument_MissingFile(t *testing.T) {
	_, err := parseDocument(filepath.Join(t.TempDir(), "nope.json"), false, parser.DefaultLayout())
	assert.Error(t, err)
}

func TestInitPipeline_InvalidConfig(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql", DatabaseURL: "x"}}

	env, err := initPipeline(context.Background(), "render")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestInitPipeline_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg = &config.Config{
		Store:   config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "cmd.db")},
		Sources: config.SourcesConfig{WorkDir: filepath.Join(dir, "pdfs")},
		Render:  config.RenderConfig{KMLPath: filepath.Join(dir, "map.kml")},
	}

	env, err := initPipeline(context.Background(), "render")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Cycle)
	assert.NotNil(t, env.Enricher)
	_, _, err = env.Cycle.RenderCurrent(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNoAuction)
}

func TestPipelineEnv_CloseNil(t *testing.T) {
	assert.NotPanics(t, func() { (&pipelineEnv{}).Close() })
}

func TestGeocoder(t *testing.T) {
	cfg = &config.Config{}
	assert.Nil(t, geocoder())

	cfg.Geocode.CensusEnabled = true
	_, ok := geocoder().(*geocode.Census)
	assert.True(t, ok)

	cfg.Geocode.GoogleAPIKey = "key"
	cascade, ok := geocoder().(geocode.Cascade)
	require.True(t, ok)
	require.Len(t, cascade, 2)
	_, ok = cascade[0].(*geocode.Google)
	assert.True(t, ok)
}

func TestPrintSummary(t *testing.T) {
	res := &pipeline.RunResult{
		Run: model.Run{
			ID:     "r1",
			Status: model.RunStatusComplete,
			Phases: []model.PhaseResult{
				{Name: pipeline.PhaseFetch, Status: model.PhaseStatusComplete, Duration: 120},
				{Name: pipeline.PhaseEnrich, Status: model.PhaseStatusFailed, Duration: 5, Error: "timeout"},
			},
			StartedAt: time.Now(),
		},
		AuctionID: "072020",
		Listings:  make([]model.Listing, 3),
		Render:    &render.Output{Placemarks: 2, Dropped: 1},
	}

	var buf bytes.Buffer
	printSummary(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "run r1: complete (auction 072020)")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, out, "listings: 3")
	assert.Contains(t, out, "map: 2 placemarks, 1 without coordinates")

	buf.Reset()
	printSummary(&buf, &pipeline.RunResult{Run: model.Run{ID: "r2", Status: model.RunStatusFailed}})
	assert.Contains(t, buf.String(), "(auction none)")
}

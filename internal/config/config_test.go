package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://www.sheriffalleghenycounty.com/pdfs/bid_list/bid_list.pdf", cfg.Sources.BidListURL)
	assert.Equal(t, "http://www.sheriffalleghenycounty.com/pdfs/bid_list/postpone.pdf", cfg.Sources.PostponementURL)
	assert.InDelta(t, 51.0, cfg.Layout.CheckboxXMin, 0.001)
	assert.InDelta(t, 52.0, cfg.Layout.CheckboxXMax, 0.001)
	assert.Equal(t, 3, cfg.Layout.CheckboxSpan)
	assert.Equal(t, 15, cfg.Layout.HeaderSkip)
	assert.Equal(t, 17, cfg.Layout.MinFullSlots)
	assert.Len(t, cfg.Layout.IgnoredY, 2)
	assert.InDelta(t, 85000.0, cfg.Render.ExpensiveThreshold, 0.001)
	assert.Equal(t, "kml/map.kml", cfg.Render.KMLPath)
	assert.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Empty(t, cfg.Valuation.Tokens)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/sheriff
log:
  level: debug
  format: console
render:
  expensive_threshold: 100000
valuation:
  tokens: [a, b]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 100000.0, cfg.Render.ExpensiveThreshold, 0.001)
	assert.Equal(t, []string{"a", "b"}, cfg.Valuation.Tokens)
	// Defaults still apply for unset values
	assert.Equal(t, 15, cfg.Layout.HeaderSkip)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SHERIFF_STORE_DRIVER", "postgres")
	t.Setenv("SHERIFF_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadNumberedTokens(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SHERIFF_VALUATION_TOKEN_1", "tok-1")
	t.Setenv("SHERIFF_VALUATION_TOKEN_3", "tok-3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1", "tok-3"}, cfg.Valuation.Tokens)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SHERIFF_GEOCODE_GOOGLE_API_KEY=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("SHERIFF_GEOCODE_GOOGLE_API_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Geocode.GoogleAPIKey)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "sheriff.db"
	cfg.Server.Port = 8080
	cfg.Sources.BidListURL = "http://example.com/bid_list.pdf"
	cfg.Schedule.Cron = "0 6 * * *"
	cfg.Render.ExpensiveThreshold = 85000
	return cfg
}

func TestValidate_Run(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("run"))
}

func TestValidate_RunNoSources(t *testing.T) {
	cfg := validDefaults()
	cfg.Sources.BidListURL = ""

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.bid_list_url")
}

func TestValidate_BadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mongo"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("render")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_ServeInvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate_ScheduleNeedsCron(t *testing.T) {
	cfg := validDefaults()
	cfg.Schedule.Cron = ""

	err := cfg.Validate("schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule.cron")
}

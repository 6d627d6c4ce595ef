package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Layout    LayoutConfig    `yaml:"layout" mapstructure:"layout"`
	Valuation ValuationConfig `yaml:"valuation" mapstructure:"valuation"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	LawFirms  LawFirmsConfig  `yaml:"law_firms" mapstructure:"law_firms"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SourcesConfig locates the published auction documents.
type SourcesConfig struct {
	BidListURL      string  `yaml:"bid_list_url" mapstructure:"bid_list_url"`
	PostponementURL string  `yaml:"postponement_url" mapstructure:"postponement_url"`
	JudgmentsURL    string  `yaml:"judgments_url" mapstructure:"judgments_url"`
	WorkDir         string  `yaml:"work_dir" mapstructure:"work_dir"`
	PDF2JSONPath    string  `yaml:"pdf2json_path" mapstructure:"pdf2json_path"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LayoutConfig holds the positional constants of the bid-list layout.
// Profile, when set, points to a YAML file that overrides these values.
type LayoutConfig struct {
	Profile      string    `yaml:"profile" mapstructure:"profile"`
	CheckboxXMin float64   `yaml:"checkbox_x_min" mapstructure:"checkbox_x_min"`
	CheckboxXMax float64   `yaml:"checkbox_x_max" mapstructure:"checkbox_x_max"`
	CheckboxSpan int       `yaml:"checkbox_span" mapstructure:"checkbox_span"`
	HeaderSkip   int       `yaml:"header_skip" mapstructure:"header_skip"`
	MinFullSlots int       `yaml:"min_full_slots" mapstructure:"min_full_slots"`
	IgnoredY     []float64 `yaml:"ignored_y" mapstructure:"ignored_y"`
}

// ValuationConfig configures the property valuation API.
type ValuationConfig struct {
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	Tokens      []string `yaml:"tokens" mapstructure:"tokens"`
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GeocodeConfig configures the geocoding providers.
type GeocodeConfig struct {
	GoogleAPIKey  string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	CensusEnabled bool    `yaml:"census_enabled" mapstructure:"census_enabled"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LawFirmsConfig locates the law-firm lookup workbook.
type LawFirmsConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
}

// RenderConfig configures the map outputs.
type RenderConfig struct {
	KMLPath            string  `yaml:"kml_path" mapstructure:"kml_path"`
	GeoJSONPath        string  `yaml:"geojson_path" mapstructure:"geojson_path"`
	ExpensiveThreshold float64 `yaml:"expensive_threshold" mapstructure:"expensive_threshold"`
}

// ScheduleConfig configures the recurring cycle.
type ScheduleConfig struct {
	Cron string `yaml:"cron" mapstructure:"cron"`
}

// PipelineConfig configures cycle-level behavior.
type PipelineConfig struct {
	CycleTimeoutMins  int `yaml:"cycle_timeout_mins" mapstructure:"cycle_timeout_mins"`
	UpsertConcurrency int `yaml:"upsert_concurrency" mapstructure:"upsert_concurrency"`
	EnrichConcurrency int `yaml:"enrich_concurrency" mapstructure:"enrich_concurrency"`
}

// RetryConfig tunes retries against upstream services.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig tunes per-service circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHERIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sheriff.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("sources.bid_list_url", "http://www.sheriffalleghenycounty.com/pdfs/bid_list/bid_list.pdf")
	v.SetDefault("sources.postponement_url", "http://www.sheriffalleghenycounty.com/pdfs/bid_list/postpone.pdf")
	v.SetDefault("sources.judgments_url", "http://www.pittsburghlegaljournal.org/subscribe/pn_sheriffsale.php")
	v.SetDefault("sources.work_dir", "pdfs")
	v.SetDefault("sources.pdf2json_path", "pdf2json")
	v.SetDefault("sources.rate_limit", 2.0)
	v.SetDefault("layout.checkbox_x_min", 51.0)
	v.SetDefault("layout.checkbox_x_max", 52.0)
	v.SetDefault("layout.checkbox_span", 3)
	v.SetDefault("layout.header_skip", 15)
	v.SetDefault("layout.min_full_slots", 17)
	v.SetDefault("layout.ignored_y", []float64{35.691, 1.5219999999999998})
	v.SetDefault("valuation.base_url", "https://api.bridgedataoutput.com/api/v2")
	v.SetDefault("valuation.concurrency", 4)
	v.SetDefault("valuation.timeout_secs", 30)
	v.SetDefault("valuation.rate_limit", 5.0)
	v.SetDefault("geocode.census_enabled", true)
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("geocode.timeout_secs", 15)
	v.SetDefault("law_firms.path", "lawFirms/lawFirms.xlsx")
	v.SetDefault("render.kml_path", "kml/map.kml")
	v.SetDefault("render.geojson_path", "kml/map.geojson")
	v.SetDefault("render.expensive_threshold", 85000.0)
	v.SetDefault("schedule.cron", "0 6 * * *")
	v.SetDefault("pipeline.cycle_timeout_mins", 30)
	v.SetDefault("pipeline.upsert_concurrency", 8)
	v.SetDefault("pipeline.enrich_concurrency", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Tokens are provisioned as SHERIFF_VALUATION_TOKEN_1..N in the deployment env.
	if len(cfg.Valuation.Tokens) == 0 {
		cfg.Valuation.Tokens = numberedTokens(v, "valuation.token_", 8)
	}

	return &cfg, nil
}

func numberedTokens(v *viper.Viper, prefix string, max int) []string {
	var out []string
	for i := 1; i <= max; i++ {
		key := prefix + string(rune('0'+i))
		_ = v.BindEnv(key)
		if tok := strings.TrimSpace(v.GetString(key)); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// Validate checks the settings a command needs before it starts.
// Modes: "run", "render", "serve", "schedule".
func (c *Config) Validate(mode string) error {
	var problems []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	switch mode {
	case "run", "schedule":
		if c.Sources.BidListURL == "" && c.Sources.PostponementURL == "" {
			problems = append(problems, "sources.bid_list_url or sources.postponement_url is required")
		}
		if mode == "schedule" && c.Schedule.Cron == "" {
			problems = append(problems, "schedule.cron is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
	}
	if c.Render.ExpensiveThreshold < 0 {
		problems = append(problems, "render.expensive_threshold must not be negative")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/wine-resolver/internal/scorer"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Scoring    scorer.Config    `yaml:"scoring" mapstructure:"scoring"`
	Files      FilesConfig      `yaml:"files" mapstructure:"files"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the query cache and run state backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the query cache.
type CacheConfig struct {
	TTLHours float64 `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns the cache lifetime. Zero or less never expires.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours * float64(time.Hour))
}

// SiteConfig restricts searches to one catalog site.
type SiteConfig struct {
	Domain     string `yaml:"domain" mapstructure:"domain"`
	PathMarker string `yaml:"path_marker" mapstructure:"path_marker"`
}

// ProviderConfig holds one search provider's credentials and limits.
type ProviderConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	MaxResults int     `yaml:"max_results" mapstructure:"max_results"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
}

// GoogleCSEConfig adds the search engine id to the provider settings.
type GoogleCSEConfig struct {
	ProviderConfig `yaml:",inline" mapstructure:",squash"`
	CX             string `yaml:"cx" mapstructure:"cx"`
}

// ProvidersConfig configures the search providers.
type ProvidersConfig struct {
	Order         []string        `yaml:"order" mapstructure:"order"`
	Site          SiteConfig      `yaml:"site" mapstructure:"site"`
	SearchBaseURL string          `yaml:"search_base_url" mapstructure:"search_base_url"`
	Serper        ProviderConfig  `yaml:"serper" mapstructure:"serper"`
	GoogleCSE     GoogleCSEConfig `yaml:"google_cse" mapstructure:"google_cse"`
	Brave         ProviderConfig  `yaml:"brave" mapstructure:"brave"`
}

// ResilienceConfig configures timeouts, retries and circuit breakers for
// provider calls.
type ResilienceConfig struct {
	CallTimeoutSecs     int `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	RetryAttempts       int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBaseMS         int `yaml:"retry_base_ms" mapstructure:"retry_base_ms"`
	RetryMaxMS          int `yaml:"retry_max_ms" mapstructure:"retry_max_ms"`
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// ResolverConfig configures a resolution run.
type ResolverConfig struct {
	// MaxAPICalls caps provider calls per run. Negative is unlimited, zero
	// is cache-only.
	MaxAPICalls        int    `yaml:"max_api_calls" mapstructure:"max_api_calls"`
	DeltaOnly          bool   `yaml:"delta_only" mapstructure:"delta_only"`
	AutoApply          bool   `yaml:"auto_apply" mapstructure:"auto_apply"`
	StopOnFirstSuccess bool   `yaml:"stop_on_first_success" mapstructure:"stop_on_first_success"`
	Concurrency        int    `yaml:"concurrency" mapstructure:"concurrency"`
	Limit              int    `yaml:"limit" mapstructure:"limit"`
	InputColumn        string `yaml:"input_column" mapstructure:"input_column"`
	LexiconPath        string `yaml:"lexicon_path" mapstructure:"lexicon_path"`
}

// FilesConfig names the CSV inputs and outputs.
type FilesConfig struct {
	Input       string `yaml:"input" mapstructure:"input"`
	Overrides   string `yaml:"overrides" mapstructure:"overrides"`
	Review      string `yaml:"review" mapstructure:"review"`
	Unmatched   string `yaml:"unmatched" mapstructure:"unmatched"`
	Suggestions string `yaml:"suggestions" mapstructure:"suggestions"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WINERESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known credential variables are honored as fallbacks.
	for key, envs := range map[string][]string{
		"providers.serper.key":     {"WINERESOLVER_PROVIDERS_SERPER_KEY", "SERPER_API_KEY"},
		"providers.google_cse.key": {"WINERESOLVER_PROVIDERS_GOOGLE_CSE_KEY", "GOOGLE_API_KEY", "GOOGLE_CSE_API_KEY"},
		"providers.google_cse.cx":  {"WINERESOLVER_PROVIDERS_GOOGLE_CSE_CX", "GOOGLE_CSE_ID"},
		"providers.brave.key":      {"WINERESOLVER_PROVIDERS_BRAVE_KEY", "BRAVE_API_KEY"},
		"store.database_url":       {"WINERESOLVER_STORE_DATABASE_URL", "DATABASE_URL"},
	} {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/wine_resolver.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("cache.ttl_hours", 168.0)
	v.SetDefault("providers.order", []string{"google_cse", "brave", "serper"})
	v.SetDefault("providers.site.domain", "vivino.com")
	v.SetDefault("providers.site.path_marker", "/w/")
	v.SetDefault("providers.search_base_url", "https://www.vivino.com/search/wines")
	v.SetDefault("providers.serper.key", "")
	v.SetDefault("providers.serper.base_url", "https://google.serper.dev")
	v.SetDefault("providers.serper.max_results", 8)
	v.SetDefault("providers.serper.rate_per_sec", 0.8)
	v.SetDefault("providers.serper.burst", 1)
	v.SetDefault("providers.google_cse.key", "")
	v.SetDefault("providers.google_cse.cx", "")
	v.SetDefault("providers.google_cse.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("providers.google_cse.max_results", 8)
	v.SetDefault("providers.google_cse.rate_per_sec", 0.8)
	v.SetDefault("providers.google_cse.burst", 1)
	v.SetDefault("providers.brave.key", "")
	v.SetDefault("providers.brave.base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("providers.brave.max_results", 8)
	v.SetDefault("providers.brave.rate_per_sec", 0.8)
	v.SetDefault("providers.brave.burst", 1)
	v.SetDefault("resilience.call_timeout_secs", 20)
	v.SetDefault("resilience.retry_attempts", 1)
	v.SetDefault("resilience.retry_base_ms", 500)
	v.SetDefault("resilience.retry_max_ms", 10000)
	v.SetDefault("resilience.breaker_threshold", 5)
	v.SetDefault("resilience.breaker_cooldown_secs", 60)
	v.SetDefault("resolver.max_api_calls", -1)
	v.SetDefault("resolver.delta_only", true)
	v.SetDefault("resolver.auto_apply", true)
	v.SetDefault("resolver.stop_on_first_success", true)
	v.SetDefault("resolver.concurrency", 1)
	v.SetDefault("resolver.limit", 0)
	v.SetDefault("resolver.input_column", "raw_name")
	v.SetDefault("resolver.lexicon_path", "")
	v.SetDefault("scoring.weights.token", 0.45)
	v.SetDefault("scoring.weights.sequence", 0.20)
	v.SetDefault("scoring.weights.set", 0.35)
	v.SetDefault("scoring.adjustments.producer_missing", 0.25)
	v.SetDefault("scoring.adjustments.producer_per_token", 0.03)
	v.SetDefault("scoring.adjustments.producer_max", 0.08)
	v.SetDefault("scoring.adjustments.year_match", 0.10)
	v.SetDefault("scoring.adjustments.year_mismatch", 0.10)
	v.SetDefault("scoring.adjustments.year_tolerance", 1)
	v.SetDefault("scoring.adjustments.color", 0.03)
	v.SetDefault("scoring.auto_apply_threshold", 0.82)
	v.SetDefault("scoring.review_threshold", 0.70)
	v.SetDefault("scoring.near_exact", 0.85)
	v.SetDefault("scoring.min_margin", 0.0)
	v.SetDefault("files.input", "data/unresolved.csv")
	v.SetDefault("files.overrides", "data/overrides.csv")
	v.SetDefault("files.review", "data/review_queue.csv")
	v.SetDefault("files.unmatched", "data/unmatched.csv")
	v.SetDefault("files.suggestions", "data/auto_overrides.csv")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
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

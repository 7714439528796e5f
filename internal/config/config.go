// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Feeds    FeedsConfig    `yaml:"feeds" mapstructure:"feeds"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Enrich   EnrichConfig   `yaml:"enrich" mapstructure:"enrich"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FeedsConfig holds the upstream feed locations and download behavior.
type FeedsConfig struct {
	IdentifiersURL string `yaml:"identifiers_url" mapstructure:"identifiers_url"`
	PricesURL      string `yaml:"prices_url" mapstructure:"prices_url"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// PipelineConfig configures the ETL stages.
type PipelineConfig struct {
	WorkDir          string `yaml:"work_dir" mapstructure:"work_dir"`
	Language         string `yaml:"language" mapstructure:"language"`
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size"`
	ProgressInterval int    `yaml:"progress_interval" mapstructure:"progress_interval"`
	// SortMemoryLines is the ceiling for the in-memory sort strategy; inputs
	// with more lines fall back to the disk-backed chunked sort.
	SortMemoryLines int `yaml:"sort_memory_lines" mapstructure:"sort_memory_lines"`
	SortChunkLines  int `yaml:"sort_chunk_lines" mapstructure:"sort_chunk_lines"`
	KeepArtifacts   bool `yaml:"keep_artifacts" mapstructure:"keep_artifacts"`
}

// EnrichConfig configures the image lookup collaborator.
type EnrichConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	CachePath   string `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLDay int    `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BatchLimit  int    `yaml:"batch_limit" mapstructure:"batch_limit"`
	RatePerSec  int    `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// NotifyConfig configures run-outcome notification.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("CARDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("feeds.identifiers_url", "https://mtgjson.com/api/v5/AllIdentifiers.json")
	v.SetDefault("feeds.prices_url", "https://mtgjson.com/api/v5/AllPrices.json")
	v.SetDefault("feeds.user_agent", "cardsync/1.0")
	v.SetDefault("feeds.timeout_secs", 600)
	v.SetDefault("feeds.max_retries", 3)
	v.SetDefault("pipeline.work_dir", "data")
	v.SetDefault("pipeline.language", "English")
	v.SetDefault("pipeline.batch_size", 500)
	v.SetDefault("pipeline.progress_interval", 5000)
	v.SetDefault("pipeline.sort_memory_lines", 2_000_000)
	v.SetDefault("pipeline.sort_chunk_lines", 250_000)
	v.SetDefault("enrich.base_url", "https://api.scryfall.com")
	// Lives in a subdirectory so artifact cleanup never touches it.
	v.SetDefault("enrich.cache_path", "data/cache/enrich.db")
	v.SetDefault("enrich.cache_ttl_days", 90)
	v.SetDefault("enrich.max_attempts", 3)
	v.SetDefault("enrich.batch_limit", 500)
	v.SetDefault("enrich.rate_per_sec", 10)

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

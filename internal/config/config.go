package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is constructed once at
// startup and passed into each component; nothing re-reads global state
// mid-run.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Portals    []PortalConfig   `yaml:"portals" mapstructure:"portals"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Recognize  RecognizeConfig  `yaml:"recognize" mapstructure:"recognize"`
	Analyze    AnalyzeConfig    `yaml:"analyze" mapstructure:"analyze"`
	Aggregate  AggregateConfig  `yaml:"aggregate" mapstructure:"aggregate"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Speech     SpeechConfig     `yaml:"speech" mapstructure:"speech"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PortalConfig describes one CRM portal tenant. Name doubles as the table-set
// prefix in the store and the subdirectory under the download dir.
type PortalConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	UserID   string `yaml:"user_id" mapstructure:"user_id"`
	Token    string `yaml:"token" mapstructure:"token"`
	DaysBack int    `yaml:"days_back" mapstructure:"days_back"`
}

// Portal returns the portal config with the given name, or nil.
func (c *Config) Portal(name string) *PortalConfig {
	for i := range c.Portals {
		if c.Portals[i].Name == name {
			return &c.Portals[i]
		}
	}
	return nil
}

// IngestConfig configures the call acquisition cycle.
type IngestConfig struct {
	DownloadDir            string        `yaml:"download_dir" mapstructure:"download_dir"`
	DefaultDaysBack        int           `yaml:"default_days_back" mapstructure:"default_days_back"`
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads" mapstructure:"max_concurrent_downloads"`
	MaxConcurrentUploads   int           `yaml:"max_concurrent_uploads" mapstructure:"max_concurrent_uploads"`
	Retries                int           `yaml:"retries" mapstructure:"retries"`
	RetryDelay             time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	Interval               time.Duration `yaml:"interval" mapstructure:"interval"`
}

// RecognizeConfig configures the speech recognition cycle.
type RecognizeConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Retries       int           `yaml:"retries" mapstructure:"retries"`
	RetryDelay    time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	Interval      time.Duration `yaml:"interval" mapstructure:"interval"`
}

// AnalyzeConfig configures the classification and criteria analysis cycle.
type AnalyzeConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Retries       int           `yaml:"retries" mapstructure:"retries"`
	RetryDelay    time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	Interval      time.Duration `yaml:"interval" mapstructure:"interval"`
}

// AggregateConfig configures the entity aggregation cycle.
type AggregateConfig struct {
	MaxConcurrentEntities int           `yaml:"max_concurrent_entities" mapstructure:"max_concurrent_entities"`
	MaxSummaryWords       int           `yaml:"max_summary_words" mapstructure:"max_summary_words"`
	Retries               int           `yaml:"retries" mapstructure:"retries"`
	RetryDelay            time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	Interval              time.Duration `yaml:"interval" mapstructure:"interval"`
}

// StorageConfig configures durable audio storage.
type StorageConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// SpeechConfig configures the speech recognition service.
type SpeechConfig struct {
	LanguageCode    string `yaml:"language_code" mapstructure:"language_code"`
	Model           string `yaml:"model" mapstructure:"model"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// AnthropicConfig holds Anthropic API settings for summarization and analysis.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExportConfig configures spreadsheet export.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
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
	v.SetEnvPrefix("CALLSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingest.download_dir", "downloads")
	v.SetDefault("ingest.default_days_back", 7)
	v.SetDefault("ingest.max_concurrent_downloads", 50)
	v.SetDefault("ingest.max_concurrent_uploads", 50)
	v.SetDefault("ingest.retries", 3)
	v.SetDefault("ingest.retry_delay", "1s")
	v.SetDefault("ingest.interval", "10m")
	v.SetDefault("recognize.max_concurrent", 50)
	v.SetDefault("recognize.retries", 3)
	v.SetDefault("recognize.retry_delay", "1s")
	v.SetDefault("recognize.interval", "1m")
	v.SetDefault("analyze.max_concurrent", 50)
	v.SetDefault("analyze.retries", 3)
	v.SetDefault("analyze.retry_delay", "100ms")
	v.SetDefault("analyze.interval", "2m")
	v.SetDefault("aggregate.max_concurrent_entities", 50)
	v.SetDefault("aggregate.max_summary_words", 1000)
	v.SetDefault("aggregate.retries", 3)
	v.SetDefault("aggregate.retry_delay", "100ms")
	v.SetDefault("aggregate.interval", "2m")
	v.SetDefault("speech.language_code", "ru-RU")
	v.SetDefault("speech.model", "phone_call")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("export.dir", "exports")

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

	// Per-portal lookback falls back to the shared default.
	for i := range cfg.Portals {
		if cfg.Portals[i].DaysBack <= 0 {
			cfg.Portals[i].DaysBack = cfg.Ingest.DefaultDaysBack
		}
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

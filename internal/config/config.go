// Package config loads the application configuration and initializes logging.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig              `yaml:"store" mapstructure:"store"`
	Telegram TelegramConfig           `yaml:"telegram" mapstructure:"telegram"`
	Poll     PollConfig               `yaml:"poll" mapstructure:"poll"`
	Filters  FilterConfig             `yaml:"filters" mapstructure:"filters"`
	Sources  map[string]SourceConfig  `yaml:"sources" mapstructure:"sources"`
	Appliers map[string]ApplierConfig `yaml:"appliers" mapstructure:"appliers"`
	Fetch    FetchConfig              `yaml:"fetch" mapstructure:"fetch"`
	Server   ServerConfig             `yaml:"server" mapstructure:"server"`
	Log      LogConfig                `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`             // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`                 // sqlite file path
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"` // postgres DSN
}

// TelegramConfig holds bot credentials and delivery tuning.
type TelegramConfig struct {
	BotToken     string        `yaml:"bot_token" mapstructure:"bot_token"`
	ChatID       string        `yaml:"chat_id" mapstructure:"chat_id"`
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	SendInterval time.Duration `yaml:"send_interval" mapstructure:"send_interval"`
}

// PollConfig controls the watch loop cadence and listing retention.
type PollConfig struct {
	Interval             time.Duration `yaml:"interval" mapstructure:"interval"`
	MaxListingAge        time.Duration `yaml:"max_listing_age" mapstructure:"max_listing_age"`
	SuspensionStartHour  int           `yaml:"suspension_start_hour" mapstructure:"suspension_start_hour"`
	SuspensionEndHour    int           `yaml:"suspension_end_hour" mapstructure:"suspension_end_hour"`
	ErrorCooldown        time.Duration `yaml:"error_cooldown" mapstructure:"error_cooldown"`
	MaxConcurrentSources int           `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
	// QuietBaseline suppresses per-listing notifications on the very
	// first cycle against an empty store, sending one summary instead.
	QuietBaseline bool `yaml:"quiet_baseline" mapstructure:"quiet_baseline"`
}

// Range is a numeric filter rule; nil bounds are unconstrained.
type Range struct {
	Min *float64 `yaml:"min" mapstructure:"min"`
	Max *float64 `yaml:"max" mapstructure:"max"`
}

// FilterConfig holds the listing filter rules.
type FilterConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	PriceTotal      Range    `yaml:"price_total" mapstructure:"price_total"`
	SQM             Range    `yaml:"sqm" mapstructure:"sqm"`
	Rooms           Range    `yaml:"rooms" mapstructure:"rooms"`
	WBSAllowed      []string `yaml:"wbs_allowed" mapstructure:"wbs_allowed"`
	BoroughsAllowed []string `yaml:"boroughs_allowed" mapstructure:"boroughs_allowed"`
}

// SourceConfig enables a single source adapter.
type SourceConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// ApplierConfig enables an auto-applier and carries its applicant data.
type ApplierConfig struct {
	Enabled   bool              `yaml:"enabled" mapstructure:"enabled"`
	Applicant map[string]string `yaml:"applicant" mapstructure:"applicant"`
}

// FetchConfig tunes outbound HTTP.
type FetchConfig struct {
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ServerConfig configures the status endpoint.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("FLATWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "listings.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("poll.interval", "300s")
	v.SetDefault("poll.max_listing_age", "48h")
	v.SetDefault("poll.suspension_start_hour", 0)
	v.SetDefault("poll.suspension_end_hour", 0)
	v.SetDefault("poll.error_cooldown", "60s")
	v.SetDefault("poll.max_concurrent_sources", 5)
	v.SetDefault("poll.quiet_baseline", false)
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.send_interval", "1s")
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("fetch.timeout", "30s")

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

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Poll.SuspensionStartHour < 0 || c.Poll.SuspensionStartHour > 23 ||
		c.Poll.SuspensionEndHour < 0 || c.Poll.SuspensionEndHour > 24 {
		return eris.New("config: suspension hours must be within 0-24")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q (valid: sqlite, postgres)", c.Store.Driver)
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

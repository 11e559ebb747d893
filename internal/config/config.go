// Package config loads the mailing server's runtime configuration from
// the TOML documents in its working directory.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultLoopIntervalSeconds is the dispatch cycle interval.
	DefaultLoopIntervalSeconds = 30

	// DefaultRateLimit is the maximum sends per dispatch cycle.
	DefaultRateLimit = 5

	// DefaultBind is the TCP intake listen address.
	DefaultBind = "0.0.0.0:1827"

	// DefaultQueueTTLSeconds is how long a queued message stays
	// deliverable before being discarded.
	DefaultQueueTTLSeconds = 300

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultStatePath is the state document path, relative to the
	// working directory.
	DefaultStatePath = "mailing_server.state.json"
)

// SMTPConfig holds relay credentials and the fixed sender/recipient pair.
type SMTPConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	To       string `mapstructure:"to"`
	From     string `mapstructure:"from"`
}

// AppSettings holds daemon behavior settings.
type AppSettings struct {
	// LoopIntervalSeconds is the dispatch cycle interval.
	LoopIntervalSeconds int `mapstructure:"loop_interval_seconds"`

	// RateLimit is the maximum sends per dispatch cycle.
	RateLimit int `mapstructure:"rate_limit"`

	// Bind is the TCP intake listen address.
	Bind string `mapstructure:"bind"`

	// QueueTTLSeconds is the queued message time-to-live.
	QueueTTLSeconds int `mapstructure:"queue_ttl_seconds"`

	// LogLevel is the slog level: debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// StatePath is the persisted state document path.
	StatePath string `mapstructure:"state_path"`

	// MetricsBind exposes prometheus metrics when set. Empty disables
	// the listener.
	MetricsBind string `mapstructure:"metrics_bind"`
}

// Config is the full runtime configuration.
type Config struct {
	SMTP SMTPConfig  `mapstructure:"smtp"`
	App  AppSettings `mapstructure:"app"`
}

// Load reads Config.toml from dir and merges Overrides.toml over it when
// present. Defaults are applied and the result validated.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.AddConfigPath(dir)

	v.SetConfigName("Config")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read Config.toml: %w", err)
	}

	v.SetConfigName("Overrides")
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: merge Overrides.toml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.App.LoopIntervalSeconds == 0 {
		c.App.LoopIntervalSeconds = DefaultLoopIntervalSeconds
	}
	if c.App.RateLimit == 0 {
		c.App.RateLimit = DefaultRateLimit
	}
	if c.App.Bind == "" {
		c.App.Bind = DefaultBind
	}
	if c.App.QueueTTLSeconds == 0 {
		c.App.QueueTTLSeconds = DefaultQueueTTLSeconds
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = DefaultLogLevel
	}
	if c.App.StatePath == "" {
		c.App.StatePath = DefaultStatePath
	}
}

// Validate checks that required fields are set and values are acceptable.
func (c *Config) Validate() error {
	if c.SMTP.Server == "" {
		return errors.New("config: smtp.server is required")
	}
	if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
		return fmt.Errorf("config: smtp.port %d out of range", c.SMTP.Port)
	}
	if c.SMTP.To == "" {
		return errors.New("config: smtp.to is required")
	}
	if c.SMTP.From == "" {
		return errors.New("config: smtp.from is required")
	}
	if c.App.LoopIntervalSeconds < 1 {
		return errors.New("config: app.loop_interval_seconds must be positive")
	}
	if c.App.RateLimit < 1 {
		return errors.New("config: app.rate_limit must be positive")
	}
	if c.App.QueueTTLSeconds < 1 {
		return errors.New("config: app.queue_ttl_seconds must be positive")
	}
	if _, _, err := net.SplitHostPort(c.App.Bind); err != nil {
		return fmt.Errorf("config: app.bind %q: %w", c.App.Bind, err)
	}
	if c.App.MetricsBind != "" {
		if _, _, err := net.SplitHostPort(c.App.MetricsBind); err != nil {
			return fmt.Errorf("config: app.metrics_bind %q: %w", c.App.MetricsBind, err)
		}
	}
	return nil
}

// LoopInterval returns the dispatch cycle interval.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.App.LoopIntervalSeconds) * time.Second
}

// QueueTTL returns the queued message time-to-live.
func (c *Config) QueueTTL() time.Duration {
	return time.Duration(c.App.QueueTTLSeconds) * time.Second
}

// String renders the configuration with the SMTP password masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"smtp: server=%s:%d user=%s password=******** to=%s from=%s; app: interval=%ds rate=%d bind=%s ttl=%ds",
		c.SMTP.Server, c.SMTP.Port, c.SMTP.Username, c.SMTP.To, c.SMTP.From,
		c.App.LoopIntervalSeconds, c.App.RateLimit, c.App.Bind, c.App.QueueTTLSeconds,
	)
}

// Package config defines the top-level configuration for signalhub and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SIGNALHUB_* environment variables.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Signals  SignalsConfig  `toml:"signals"`
	Clients  ClientsConfig  `toml:"clients"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Notify   NotifyConfig   `toml:"notify"`
	Producer ProducerConfig `toml:"producer"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled the event bus,
// price cache and polling queues run in process.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MonitorConfig drives the threshold monitor.
type MonitorConfig struct {
	Interval duration `toml:"interval"`
	// PriceSource is "yahoo", "cache" or "static".
	PriceSource string `toml:"price_source"`
	// StaticPrices maps symbol to decimal price for the static source.
	StaticPrices map[string]string `toml:"static_prices"`
}

// SignalsConfig controls signal expiry.
type SignalsConfig struct {
	Expiry        duration `toml:"expiry"`
	SweepInterval duration `toml:"sweep_interval"`
}

// ClientsConfig controls the polling client registry.
type ClientsConfig struct {
	HeartbeatTimeout duration `toml:"heartbeat_timeout"`
	SweepInterval    duration `toml:"sweep_interval"`
}

// DispatchConfig controls signal fan-out.
type DispatchConfig struct {
	Timeout duration `toml:"timeout"`
	// Channels lists the enabled delivery channels.
	Channels      []string `toml:"channels"`
	RetryAttempts int      `toml:"retry_attempts"`
	RetryBackoff  duration `toml:"retry_backoff"`
}

// NotifyConfig holds chat platform credentials. A chat channel without
// credentials is served by a recording stand-in.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	TelegramBaseURL   string `toml:"telegram_base_url"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	DiscordUsername   string `toml:"discord_username"`

	// AlertChannel ("telegram" or "discord") receives an operator alert when
	// a delivery channel fails AlertAfter dispatches in a row. Empty disables
	// alerting.
	AlertChannel string `toml:"alert_channel"`
	AlertAfter   int    `toml:"alert_after"`
}

// ProducerConfig configures the recommendation source.
type ProducerConfig struct {
	Enabled  bool     `toml:"enabled"`
	URL      string   `toml:"url"`
	APIKey   string   `toml:"api_key"`
	Interval duration `toml:"interval"`
}

// ArchiveConfig controls exports to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// duration wraps time.Duration so it can be decoded from a TOML string like
// "5s" or "15m".
type duration struct {
	time.Duration
}

// Duration builds a config duration.
func Duration(d time.Duration) duration {
	return duration{d}
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required in the X-API-Key header.
	APIKey string `toml:"api_key"`
	// PollRateLimit caps poll requests per connection per PollRateWindow.
	// Zero disables the limit. Enforced only when Redis is enabled.
	PollRateLimit  int      `toml:"poll_rate_limit"`
	PollRateWindow duration `toml:"poll_rate_window"`
}

// Defaults returns a Config populated with sensible default values.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{Driver: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "signalhub",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "signalhub-archive",
			ForcePathStyle: true,
		},
		Monitor: MonitorConfig{
			Interval:     duration{5 * time.Second},
			PriceSource:  "yahoo",
			StaticPrices: map[string]string{},
		},
		Signals: SignalsConfig{
			Expiry:        duration{15 * time.Minute},
			SweepInterval: duration{time.Minute},
		},
		Clients: ClientsConfig{
			HeartbeatTimeout: duration{60 * time.Second},
			SweepInterval:    duration{30 * time.Second},
		},
		Dispatch: DispatchConfig{
			Timeout:       duration{10 * time.Second},
			Channels:      []string{"live", "polling"},
			RetryAttempts: 1,
			RetryBackoff:  duration{2 * time.Second},
		},
		Notify: NotifyConfig{
			DiscordUsername: "signalhub",
			AlertAfter:      3,
		},
		Producer: ProducerConfig{
			Interval: duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			PollRateLimit:  120,
			PollRateWindow: duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true,
	"server":  true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validChannels = map[string]bool{
	"live":     true,
	"telegram": true,
	"discord":  true,
	"polling":  true,
}

var validPriceSources = map[string]bool{
	"yahoo":  true,
	"cache":  true,
	"static": true,
}

// HasChannel reports whether the named delivery channel is enabled.
func (c *Config) HasChannel(name string) bool {
	for _, ch := range c.Dispatch.Channels {
		if strings.EqualFold(ch, name) {
			return true
		}
	}
	return false
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, server, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Storage
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: memory, postgres)", c.Storage.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Monitor
	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}
	if !validPriceSources[c.Monitor.PriceSource] {
		errs = append(errs, fmt.Sprintf("monitor: unknown price_source %q (valid: yahoo, cache, static)", c.Monitor.PriceSource))
	}
	if c.Monitor.PriceSource == "cache" && !c.Redis.Enabled && c.Mode == "monitor" {
		errs = append(errs, "monitor: price_source cache needs redis when running in monitor mode")
	}

	// Signals and clients
	if c.Signals.Expiry.Duration <= 0 {
		errs = append(errs, "signals: expiry must be > 0")
	}
	if c.Signals.SweepInterval.Duration <= 0 {
		errs = append(errs, "signals: sweep_interval must be > 0")
	}
	if c.Clients.HeartbeatTimeout.Duration <= 0 {
		errs = append(errs, "clients: heartbeat_timeout must be > 0")
	}
	if c.Clients.SweepInterval.Duration <= 0 {
		errs = append(errs, "clients: sweep_interval must be > 0")
	}

	// Dispatch
	if c.Dispatch.Timeout.Duration <= 0 {
		errs = append(errs, "dispatch: timeout must be > 0")
	}
	if c.Dispatch.RetryAttempts < 1 {
		errs = append(errs, "dispatch: retry_attempts must be >= 1")
	}
	for _, ch := range c.Dispatch.Channels {
		if !validChannels[strings.ToLower(ch)] {
			errs = append(errs, fmt.Sprintf("dispatch: unknown channel %q (valid: live, telegram, discord, polling)", ch))
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	switch strings.ToLower(c.Notify.AlertChannel) {
	case "":
	case "telegram":
		if c.Notify.TelegramToken == "" {
			errs = append(errs, "notify: alert_channel telegram needs telegram_token")
		}
	case "discord":
		if c.Notify.DiscordWebhookURL == "" {
			errs = append(errs, "notify: alert_channel discord needs discord_webhook_url")
		}
	default:
		errs = append(errs, fmt.Sprintf("notify: unknown alert_channel %q (valid: telegram, discord)", c.Notify.AlertChannel))
	}
	if c.Notify.AlertChannel != "" && c.Notify.AlertAfter < 1 {
		errs = append(errs, "notify: alert_after must be >= 1")
	}

	// Producer
	if c.Producer.Enabled {
		if c.Producer.URL == "" {
			errs = append(errs, "producer: url is required when enabled")
		}
		if c.Producer.Interval.Duration <= 0 {
			errs = append(errs, "producer: interval must be > 0")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Mode != "monitor" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.PollRateLimit < 0 {
			errs = append(errs, "server: poll_rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

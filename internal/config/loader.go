package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SIGNALHUB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SIGNALHUB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Storage ──
	setStr(&cfg.Storage.Driver, "SIGNALHUB_STORAGE_DRIVER")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SIGNALHUB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SIGNALHUB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SIGNALHUB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SIGNALHUB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SIGNALHUB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SIGNALHUB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SIGNALHUB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SIGNALHUB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SIGNALHUB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SIGNALHUB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SIGNALHUB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SIGNALHUB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIGNALHUB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIGNALHUB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIGNALHUB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SIGNALHUB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SIGNALHUB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SIGNALHUB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SIGNALHUB_S3_REGION")
	setStr(&cfg.S3.Bucket, "SIGNALHUB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SIGNALHUB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SIGNALHUB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SIGNALHUB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SIGNALHUB_S3_FORCE_PATH_STYLE")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "SIGNALHUB_MONITOR_INTERVAL")
	setStr(&cfg.Monitor.PriceSource, "SIGNALHUB_MONITOR_PRICE_SOURCE")

	// ── Signals / clients ──
	setDuration(&cfg.Signals.Expiry, "SIGNALHUB_SIGNALS_EXPIRY")
	setDuration(&cfg.Signals.SweepInterval, "SIGNALHUB_SIGNALS_SWEEP_INTERVAL")
	setDuration(&cfg.Clients.HeartbeatTimeout, "SIGNALHUB_CLIENTS_HEARTBEAT_TIMEOUT")
	setDuration(&cfg.Clients.SweepInterval, "SIGNALHUB_CLIENTS_SWEEP_INTERVAL")

	// ── Dispatch ──
	setDuration(&cfg.Dispatch.Timeout, "SIGNALHUB_DISPATCH_TIMEOUT")
	setStringSlice(&cfg.Dispatch.Channels, "SIGNALHUB_DISPATCH_CHANNELS")
	setInt(&cfg.Dispatch.RetryAttempts, "SIGNALHUB_DISPATCH_RETRY_ATTEMPTS")
	setDuration(&cfg.Dispatch.RetryBackoff, "SIGNALHUB_DISPATCH_RETRY_BACKOFF")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIGNALHUB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SIGNALHUB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramBaseURL, "SIGNALHUB_NOTIFY_TELEGRAM_BASE_URL")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIGNALHUB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.DiscordUsername, "SIGNALHUB_NOTIFY_DISCORD_USERNAME")
	setStr(&cfg.Notify.AlertChannel, "SIGNALHUB_NOTIFY_ALERT_CHANNEL")
	setInt(&cfg.Notify.AlertAfter, "SIGNALHUB_NOTIFY_ALERT_AFTER")

	// ── Producer ──
	setBool(&cfg.Producer.Enabled, "SIGNALHUB_PRODUCER_ENABLED")
	setStr(&cfg.Producer.URL, "SIGNALHUB_PRODUCER_URL")
	setStr(&cfg.Producer.APIKey, "SIGNALHUB_PRODUCER_API_KEY")
	setDuration(&cfg.Producer.Interval, "SIGNALHUB_PRODUCER_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SIGNALHUB_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "SIGNALHUB_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "SIGNALHUB_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "SIGNALHUB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SIGNALHUB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SIGNALHUB_SERVER_API_KEY")
	setInt(&cfg.Server.PollRateLimit, "SIGNALHUB_SERVER_POLL_RATE_LIMIT")
	setDuration(&cfg.Server.PollRateWindow, "SIGNALHUB_SERVER_POLL_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "SIGNALHUB_MODE")
	setStr(&cfg.LogLevel, "SIGNALHUB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

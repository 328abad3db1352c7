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
// built-in defaults, applies PULSE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PULSE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Provider ──
	setStr(&cfg.Provider.BaseURL, "PULSE_PROVIDER_BASE_URL")
	setStr(&cfg.Provider.APIKey, "PULSE_PROVIDER_API_KEY")
	setDuration(&cfg.Provider.Timeout, "PULSE_PROVIDER_TIMEOUT")

	// ── Monitor ──
	setBool(&cfg.Monitor.Enabled, "PULSE_MONITOR_ENABLED")
	setStringSlice(&cfg.Monitor.Entities, "PULSE_MONITOR_ENTITIES")
	setDuration(&cfg.Monitor.Interval, "PULSE_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.FetchTimeout, "PULSE_MONITOR_FETCH_TIMEOUT")
	setDuration(&cfg.Monitor.HistoryRetention, "PULSE_MONITOR_HISTORY_RETENTION")
	setInt(&cfg.Monitor.MaxSamples, "PULSE_MONITOR_MAX_SAMPLES")
	setDuration(&cfg.Monitor.HeatmapSlot, "PULSE_MONITOR_HEATMAP_SLOT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PULSE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PULSE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PULSE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PULSE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PULSE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PULSE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PULSE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PULSE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PULSE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PULSE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PULSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PULSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PULSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PULSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PULSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PULSE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PULSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PULSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "PULSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PULSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PULSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PULSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PULSE_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.ArchiveEnabled, "PULSE_S3_ARCHIVE_ENABLED")
	setDuration(&cfg.S3.ArchiveInterval, "PULSE_S3_ARCHIVE_INTERVAL")
	setDuration(&cfg.S3.ArchiveAfter, "PULSE_S3_ARCHIVE_AFTER")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PULSE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PULSE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PULSE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PULSE_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PULSE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PULSE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PULSE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PULSE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PULSE_MODE")
	setStr(&cfg.LogLevel, "PULSE_LOG_LEVEL")
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

// Package config defines the top-level configuration for the trader activity
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PULSE_* environment variables.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Scoring  ScoringConfig  `toml:"scoring"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ProviderConfig holds the account data provider API parameters.
type ProviderConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// MonitorConfig holds the polling cycle parameters.
type MonitorConfig struct {
	Enabled          bool     `toml:"enabled"`
	Entities         []string `toml:"entities"`
	Interval         duration `toml:"interval"`
	FetchTimeout     duration `toml:"fetch_timeout"`
	HistoryRetention duration `toml:"history_retention"`
	MaxSamples       int      `toml:"max_samples"`
	HeatmapSlot      duration `toml:"heatmap_slot"`
}

// ScoringConfig holds the activity scoring weights and normalization ceilings.
// Zero values fall back to the built-in scoring defaults.
type ScoringConfig struct {
	ColdTradeWeight     float64 `toml:"cold_trade_weight"`
	ColdPositionWeight  float64 `toml:"cold_position_weight"`
	ColdVolumeWeight    float64 `toml:"cold_volume_weight"`
	ColdTradeCeiling    float64 `toml:"cold_trade_ceiling"`
	ColdPositionCeiling float64 `toml:"cold_position_ceiling"`
	ColdVolumeCeiling   float64 `toml:"cold_volume_ceiling"`

	VolumeWeight    float64 `toml:"volume_weight"`
	FrequencyWeight float64 `toml:"frequency_weight"`
	PortfolioWeight float64 `toml:"portfolio_weight"`
	PnLWeight       float64 `toml:"pnl_weight"`

	VolumeCeiling    float64 `toml:"volume_ceiling"`
	FrequencyCeiling float64 `toml:"frequency_ceiling"`
	PositionCeiling  float64 `toml:"position_ceiling"`
	QuantityCeiling  float64 `toml:"quantity_ceiling"`
	PnLDivisor       float64 `toml:"pnl_divisor"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the cold
// score archive.
type S3Config struct {
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveEnabled  bool     `toml:"archive_enabled"`
	ArchiveInterval duration `toml:"archive_interval"`
	ArchiveAfter    duration `toml:"archive_after"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL: "http://localhost:8080/v1",
			Timeout: duration{30 * time.Second},
		},
		Monitor: MonitorConfig{
			Enabled:          true,
			Entities:         []string{},
			Interval:         duration{time.Minute},
			FetchTimeout:     duration{10 * time.Second},
			HistoryRetention: duration{24 * time.Hour},
			MaxSamples:       1440,
			HeatmapSlot:      duration{30 * time.Minute},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "traderpulse-data",
			UseSSL:          false,
			ForcePathStyle:  true,
			ArchiveEnabled:  false,
			ArchiveInterval: duration{6 * time.Hour},
			ArchiveAfter:    duration{7 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"cycle_failed", "provider_outage", "archive_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Provider
	if c.Provider.BaseURL == "" {
		errs = append(errs, "provider: base_url must not be empty")
	}
	if c.Provider.Timeout.Duration <= 0 {
		errs = append(errs, "provider: timeout must be > 0")
	}

	// Monitor. A monitoring process without entities has nothing to do.
	runsMonitor := c.Mode == "monitor" || c.Mode == "full"
	if runsMonitor && c.Monitor.Enabled {
		if len(c.Monitor.Entities) == 0 {
			errs = append(errs, "monitor: entities must not be empty for mode "+c.Mode)
		}
	}
	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}
	if c.Monitor.FetchTimeout.Duration <= 0 {
		errs = append(errs, "monitor: fetch_timeout must be > 0")
	}
	if c.Monitor.HistoryRetention.Duration <= 0 {
		errs = append(errs, "monitor: history_retention must be > 0")
	}
	if c.Monitor.MaxSamples < 1 {
		errs = append(errs, "monitor: max_samples must be >= 1")
	}
	if c.Monitor.HeatmapSlot.Duration <= 0 {
		errs = append(errs, "monitor: heatmap_slot must be > 0")
	}

	// Scoring: weights must be non-negative; each weight group, when any of
	// its members is set, must sum to 1.
	cold := []float64{c.Scoring.ColdTradeWeight, c.Scoring.ColdPositionWeight, c.Scoring.ColdVolumeWeight}
	if err := checkWeights("scoring: cold weights", cold); err != "" {
		errs = append(errs, err)
	}
	warm := []float64{c.Scoring.VolumeWeight, c.Scoring.FrequencyWeight, c.Scoring.PortfolioWeight, c.Scoring.PnLWeight}
	if err := checkWeights("scoring: warm weights", warm); err != "" {
		errs = append(errs, err)
	}
	ceilings := []struct {
		name  string
		value float64
	}{
		{"cold_trade_ceiling", c.Scoring.ColdTradeCeiling},
		{"cold_position_ceiling", c.Scoring.ColdPositionCeiling},
		{"cold_volume_ceiling", c.Scoring.ColdVolumeCeiling},
		{"volume_ceiling", c.Scoring.VolumeCeiling},
		{"frequency_ceiling", c.Scoring.FrequencyCeiling},
		{"position_ceiling", c.Scoring.PositionCeiling},
		{"quantity_ceiling", c.Scoring.QuantityCeiling},
		{"pnl_divisor", c.Scoring.PnLDivisor},
	}
	for _, ceil := range ceilings {
		if ceil.value < 0 {
			errs = append(errs, "scoring: "+ceil.name+" must be >= 0")
		}
	}

	// Postgres
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
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only required when archiving is on.
	if c.S3.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be > 0")
		}
		if c.S3.ArchiveAfter.Duration <= 0 {
			errs = append(errs, "s3: archive_after must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// checkWeights validates a weight group: all zero means "use defaults", and
// any non-zero member requires the group to be non-negative and sum to 1.
func checkWeights(label string, ws []float64) string {
	sum := 0.0
	allZero := true
	for _, w := range ws {
		if w < 0 {
			return label + " must be >= 0"
		}
		if w != 0 {
			allZero = false
		}
		sum += w
	}
	if allZero {
		return ""
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Sprintf("%s must sum to 1.0, got %.3f", label, sum)
	}
	return ""
}

// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Flat snake_case keys shared by the YAML file and GUILDSTATS_* env vars.
//   - New returns a Config with defaults; Load layers file and env on top.
//   - Errors returned by Load wrap ErrLoadConfig or ErrInvalidConfig.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// LogFile, when set, also writes logs to a rotated file.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path" validate:"required"`

	// APIBaseURL is the game API root, e.g. "https://api.manarion.com".
	APIBaseURL string `koanf:"api_base_url" validate:"required,url"`

	// APITimeoutMS bounds a single game API request.
	APITimeoutMS int `koanf:"api_timeout_ms" validate:"gte=100"`

	// APIMaxRetries is the number of retries after the first attempt.
	APIMaxRetries int `koanf:"api_max_retries" validate:"gte=0,lte=10"`

	// APIRequestDelayMS is the minimum spacing between game API requests.
	APIRequestDelayMS int `koanf:"api_request_delay_ms" validate:"gte=0"`

	// WorkerCount sets the number of profile fetch workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1,lte=32"`

	// QueueSize bounds the in-memory fetch queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// TopGuilds limits how many guilds from the guild list are tracked.
	TopGuilds int `koanf:"top_guilds" validate:"gte=1"`

	// CollectIntervalSeconds is the spacing between scheduled collection runs.
	CollectIntervalSeconds int `koanf:"collect_interval_seconds" validate:"gte=10"`

	// CollectOnStart runs a collection immediately on startup.
	CollectOnStart bool `koanf:"collect_on_start"`

	// HistoryRetentionDays prunes snapshots, market rows and logs older than this.
	HistoryRetentionDays int `koanf:"history_retention_days" validate:"gte=1"`

	// MarketItem is the item whose price converts codex into dust.
	MarketItem string `koanf:"market_item" validate:"required"`

	// MarketWindowHours is the averaging window for MarketItem.
	MarketWindowHours int `koanf:"market_window_hours" validate:"gte=1"`

	// FallbackCodexPrice is used when no market rows exist in the window.
	FallbackCodexPrice int64 `koanf:"fallback_codex_price" validate:"gt=0"`

	// CacheSize and CacheTTLSeconds bound the read API cache.
	CacheSize       int `koanf:"cache_size" validate:"gte=1"`
	CacheTTLSeconds int `koanf:"cache_ttl_seconds" validate:"gte=1"`

	// CORSAllowedOrigins lists origins allowed to call the read API.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"min=1"`

	// NexusBoostPriority is the ordered list of boost ids tried for research damage.
	NexusBoostPriority []string `koanf:"nexus_boost_priority" validate:"min=1,dive,required,numeric"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		DBPath:                 "data/guild_stats.db",
		APIBaseURL:             "https://api.manarion.com",
		APITimeoutMS:           10_000,
		APIMaxRetries:          3,
		APIRequestDelayMS:      500,
		WorkerCount:            2,
		QueueSize:              1_000,
		TopGuilds:              50,
		CollectIntervalSeconds: 3_600,
		CollectOnStart:         true,
		HistoryRetentionDays:   30,
		MarketItem:             "Codex",
		MarketWindowHours:      24,
		FallbackCodexPrice:     10_000_000_000,
		CacheSize:              128,
		CacheTTLSeconds:        60,
		CORSAllowedOrigins:     []string{"*"},
		NexusBoostPriority: []string{
			"30", "31", "32", "40", "41", "42", "43", "44", "45", "46", "47", "48", "49", "50",
		},
	}
}

// APITimeout returns APITimeoutMS as a duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutMS) * time.Millisecond
}

// APIRequestDelay returns APIRequestDelayMS as a duration.
func (c *Config) APIRequestDelay() time.Duration {
	return time.Duration(c.APIRequestDelayMS) * time.Millisecond
}

// CollectInterval returns CollectIntervalSeconds as a duration.
func (c *Config) CollectInterval() time.Duration {
	return time.Duration(c.CollectIntervalSeconds) * time.Second
}

// HistoryRetention returns HistoryRetentionDays as a duration.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

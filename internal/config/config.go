// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultCommandPrefix   = ";;"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "chorus"
	DefaultPGSSLMode       = "disable"
	DefaultPluralKitURL    = "https://api.pluralkit.me/v2"
	DefaultRetryCeiling    = 3
	DefaultRecentCapacity  = 1
	DefaultSyncBatchSize   = 5
	DefaultSyncCronPattern = "0 0 */6 * * *"
)

// Default timeouts for remote operations.
const (
	DefaultPluralKitTimeout = 10 * time.Second
	DefaultSyncUnitTimeout  = 10 * time.Second
	DefaultEmoteTimeout     = 3 * time.Second
	DefaultStartTimeout     = 10 * time.Second
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Discord   DiscordConfig   `toml:"discord"`
	PluralKit PluralKitConfig `toml:"pluralkit"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Sync      SyncConfig      `toml:"sync"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the admin HTTP listen address and static bearer token.
type ServerConfig struct {
	Addr       string `toml:"addr"`
	AdminToken string `toml:"admin_token"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DiscordConfig holds the service credentials and guild-level settings.
//
// ServiceToken is the primary bot account; HelperToken authenticates the shared
// proxy connection (falls back to ServiceToken when empty). DeleteLogChannelID
// and DeleteLogUserID identify where moderation delete-log entries appear.
type DiscordConfig struct {
	ServiceToken       string `toml:"service_token"`
	HelperToken        string `toml:"helper_token"`
	GuildID            string `toml:"guild_id"`
	CommandPrefix      string `toml:"command_prefix"`
	LoggingChannelID   string `toml:"logging_channel_id"`
	DeleteLogChannelID string `toml:"delete_log_channel_id"`
	DeleteLogUserID    string `toml:"delete_log_user_id"`
}

// PluralKitConfig holds the external identity source base URL and request timeout.
type PluralKitConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the configured request timeout.
func (c PluralKitConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultPluralKitTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProxyConfig holds proxy pipeline tuning: retry ceiling, recently-proxied
// cache capacity, and the emote rehost time budget.
type ProxyConfig struct {
	RetryCeiling        int `toml:"retry_ceiling"`
	RecentCacheCapacity int `toml:"recent_cache_capacity"`
	EmoteTimeoutSeconds int `toml:"emote_timeout_seconds"`
}

// EmoteTimeout returns the emote rehosting time budget.
func (c ProxyConfig) EmoteTimeout() time.Duration {
	if c.EmoteTimeoutSeconds <= 0 {
		return DefaultEmoteTimeout
	}
	return time.Duration(c.EmoteTimeoutSeconds) * time.Second
}

// SyncConfig holds sync engine batching and scheduling parameters.
// DefaultRoleIDs are granted to every member instance during sync.
type SyncConfig struct {
	BatchSize          int      `toml:"batch_size"`
	UnitTimeoutSeconds int      `toml:"unit_timeout_seconds"`
	CronPattern        string   `toml:"cron_pattern"`
	DefaultRoleIDs     []string `toml:"default_role_ids"`
}

// UnitTimeout returns the per-unit fetch timeout.
func (c SyncConfig) UnitTimeout() time.Duration {
	if c.UnitTimeoutSeconds <= 0 {
		return DefaultSyncUnitTimeout
	}
	return time.Duration(c.UnitTimeoutSeconds) * time.Second
}

// Load reads and parses the TOML config file at path and applies default values
// for missing fields. Environment variables CHORUS_SERVICE_TOKEN,
// CHORUS_HELPER_TOKEN, CHORUS_ADMIN_TOKEN and CHORUS_PG_PASSWORD override
// their file counterparts.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if v := os.Getenv("CHORUS_SERVICE_TOKEN"); v != "" {
		cfg.Discord.ServiceToken = v
	}
	if v := os.Getenv("CHORUS_HELPER_TOKEN"); v != "" {
		cfg.Discord.HelperToken = v
	}
	if v := os.Getenv("CHORUS_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("CHORUS_PG_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CHORUS_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultHTTPAddr
	}
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPGHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPGPort
	}
	if cfg.Postgres.User == "" {
		cfg.Postgres.User = DefaultPGUser
	}
	if cfg.Postgres.Database == "" {
		cfg.Postgres.Database = DefaultPGDatabase
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = DefaultPGSSLMode
	}
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = DefaultCommandPrefix
	}
	if cfg.Discord.HelperToken == "" {
		cfg.Discord.HelperToken = cfg.Discord.ServiceToken
	}
	if cfg.PluralKit.BaseURL == "" {
		cfg.PluralKit.BaseURL = DefaultPluralKitURL
	}
	if cfg.Proxy.RetryCeiling <= 0 {
		cfg.Proxy.RetryCeiling = DefaultRetryCeiling
	}
	if cfg.Proxy.RecentCacheCapacity <= 0 {
		cfg.Proxy.RecentCacheCapacity = DefaultRecentCapacity
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = DefaultSyncBatchSize
	}
	if cfg.Sync.CronPattern == "" {
		cfg.Sync.CronPattern = DefaultSyncCronPattern
	}
}

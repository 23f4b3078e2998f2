// Package config defines the top-level configuration for the copy-trading
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by COPYTRADER_* environment
// variables.
type Config struct {
	Leader   AccountConfig  `toml:"leader"`
	Follower AccountConfig  `toml:"follower"`
	Dhan     DhanConfig     `toml:"dhan"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Copy     CopyConfig     `toml:"copy"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AccountConfig holds the broker credentials for one side of the
// replication (leader or follower).
type AccountConfig struct {
	ClientID    string `toml:"client_id"`
	AccessToken string `toml:"access_token"`
}

// DhanConfig holds the brokerage REST and streaming API endpoints.
type DhanConfig struct {
	BaseURL           string `toml:"base_url"`
	WsHost            string `toml:"ws_host"`
	MaxRequestsPerSec int    `toml:"max_requests_per_sec"`
}

// SupabaseConfig holds PostgreSQL connection parameters.
type SupabaseConfig struct {
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

// S3Config holds S3-compatible object storage parameters used for cold
// archival of order events and audit log rows.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ArchiveAfter   duration `toml:"archive_after"`
	ArchiveCron    string `toml:"archive_cron"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// CopyConfig holds the replication engine's behavioral parameters.
type CopyConfig struct {
	Enabled             bool     `toml:"enabled"`
	SizingStrategy      string   `toml:"sizing_strategy"` // capital_proportional | fixed_ratio | risk_based
	CapitalRatio        float64  `toml:"capital_ratio"`
	FixedRatio          float64  `toml:"fixed_ratio"`
	RiskPerTradePct     float64  `toml:"risk_per_trade_pct"`
	MaxPositionPct      float64  `toml:"max_position_pct"`
	AllowedProducts     []string `toml:"allowed_products"`
	AllowedSegments     []string `toml:"allowed_segments"`
	HeartbeatInterval   duration `toml:"heartbeat_interval"`
	HeartbeatTimeout    duration `toml:"heartbeat_timeout"`
	ReconnectBackoffMin duration `toml:"reconnect_backoff_min"`
	ReconnectBackoffMax duration `toml:"reconnect_backoff_max"`
	MaxReconnectAttempts int     `toml:"max_reconnect_attempts"`
	RecoveryLookback    duration `toml:"recovery_lookback"`
	DrainTimeout        duration `toml:"drain_timeout"`
	SkewWarnThreshold   duration `toml:"skew_warn_threshold"`
	FundsTTL            duration `toml:"funds_ttl"`
}

// NotifyConfig holds notification channel credentials for operator alerts.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Dhan: DhanConfig{
			BaseURL:           "https://api.dhan.co/v2",
			WsHost:            "wss://api-order-update.dhan.co",
			MaxRequestsPerSec: 10,
		},
		Supabase: SupabaseConfig{
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
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "copytrader-archive",
			ForcePathStyle: true,
			ArchiveAfter:   duration{30 * 24 * time.Hour},
			ArchiveCron:    "0 3 * * *",
		},
		Copy: CopyConfig{
			Enabled:             true,
			SizingStrategy:      "capital_proportional",
			CapitalRatio:        1.0,
			MaxPositionPct:      0.25,
			AllowedProducts:     []string{"CNC", "INTRADAY", "MARGIN", "MTF", "CO", "BO"},
			AllowedSegments:     []string{"NSE_EQ", "NSE_FNO", "BSE_EQ"},
			HeartbeatInterval:    duration{10 * time.Second},
			HeartbeatTimeout:     duration{30 * time.Second},
			ReconnectBackoffMin:  duration{1 * time.Second},
			ReconnectBackoffMax:  duration{60 * time.Second},
			MaxReconnectAttempts: 20,
			RecoveryLookback:     duration{1 * time.Hour},
			DrainTimeout:         duration{15 * time.Second},
			SkewWarnThreshold:    duration{60 * time.Second},
			FundsTTL:             duration{30 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"order_rejected", "bracket_error", "replication_failed", "disconnect"},
		},
		Mode:     "live",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"live":      true,
	"replay":    true,
	"dry_run":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSizingStrategies = map[string]bool{
	"capital_proportional": true,
	"fixed_ratio":          true,
	"risk_based":           true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, replay, dry_run)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Leader.ClientID == "" || c.Leader.AccessToken == "" {
		errs = append(errs, "leader: client_id and access_token must both be set")
	}
	if c.Follower.ClientID == "" || c.Follower.AccessToken == "" {
		errs = append(errs, "follower: client_id and access_token must both be set")
	}
	if c.Leader.ClientID != "" && c.Leader.ClientID == c.Follower.ClientID {
		errs = append(errs, "leader and follower must be distinct accounts")
	}

	if c.Dhan.BaseURL == "" {
		errs = append(errs, "dhan: base_url must not be empty")
	}
	if c.Dhan.WsHost == "" {
		errs = append(errs, "dhan: ws_host must not be empty")
	}
	if c.Dhan.MaxRequestsPerSec <= 0 {
		errs = append(errs, "dhan: max_requests_per_sec must be > 0")
	}

	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 {
		errs = append(errs, "supabase: pool_min_conns must be >= 0")
	}
	if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if !validSizingStrategies[c.Copy.SizingStrategy] {
		errs = append(errs, fmt.Sprintf("copy: unknown sizing_strategy %q (valid: capital_proportional, fixed_ratio, risk_based)", c.Copy.SizingStrategy))
	}
	if c.Copy.SizingStrategy == "fixed_ratio" && c.Copy.FixedRatio <= 0 {
		errs = append(errs, "copy: fixed_ratio must be > 0 when sizing_strategy is fixed_ratio")
	}
	if c.Copy.SizingStrategy == "risk_based" && c.Copy.RiskPerTradePct <= 0 {
		errs = append(errs, "copy: risk_per_trade_pct must be > 0 when sizing_strategy is risk_based")
	}
	if c.Copy.MaxPositionPct <= 0 || c.Copy.MaxPositionPct > 1 {
		errs = append(errs, "copy: max_position_pct must be in (0, 1]")
	}
	if c.Copy.HeartbeatInterval.Duration <= 0 {
		errs = append(errs, "copy: heartbeat_interval must be > 0")
	}
	if c.Copy.HeartbeatTimeout.Duration <= c.Copy.HeartbeatInterval.Duration {
		errs = append(errs, "copy: heartbeat_timeout must exceed heartbeat_interval")
	}
	if c.Copy.ReconnectBackoffMax.Duration < c.Copy.ReconnectBackoffMin.Duration {
		errs = append(errs, "copy: reconnect_backoff_max must be >= reconnect_backoff_min")
	}
	if c.Copy.MaxReconnectAttempts <= 0 {
		errs = append(errs, "copy: max_reconnect_attempts must be > 0")
	}
	if c.Copy.SkewWarnThreshold.Duration <= 0 {
		errs = append(errs, "copy: skew_warn_threshold must be > 0")
	}
	if c.Copy.FundsTTL.Duration <= 0 {
		errs = append(errs, "copy: funds_ttl must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

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
// built-in defaults, applies COPYTRADER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known COPYTRADER_* environment variables and
// overwrites the corresponding Config fields when set. This lets operators
// inject credentials at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Leader / follower accounts ──
	setStr(&cfg.Leader.ClientID, "COPYTRADER_LEADER_CLIENT_ID")
	setStr(&cfg.Leader.AccessToken, "COPYTRADER_LEADER_ACCESS_TOKEN")
	setStr(&cfg.Follower.ClientID, "COPYTRADER_FOLLOWER_CLIENT_ID")
	setStr(&cfg.Follower.AccessToken, "COPYTRADER_FOLLOWER_ACCESS_TOKEN")

	// ── Dhan ──
	setStr(&cfg.Dhan.BaseURL, "COPYTRADER_DHAN_BASE_URL")
	setStr(&cfg.Dhan.WsHost, "COPYTRADER_DHAN_WS_HOST")
	setInt(&cfg.Dhan.MaxRequestsPerSec, "COPYTRADER_DHAN_MAX_REQUESTS_PER_SEC")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "COPYTRADER_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "COPYTRADER_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "COPYTRADER_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "COPYTRADER_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "COPYTRADER_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "COPYTRADER_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "COPYTRADER_SUPABASE_SSLMODE")
	setInt(&cfg.Supabase.PoolMaxConns, "COPYTRADER_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "COPYTRADER_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "COPYTRADER_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "COPYTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COPYTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COPYTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COPYTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COPYTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COPYTRADER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "COPYTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "COPYTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "COPYTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "COPYTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "COPYTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "COPYTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "COPYTRADER_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveAfter, "COPYTRADER_S3_ARCHIVE_AFTER")
	setStr(&cfg.S3.ArchiveCron, "COPYTRADER_S3_ARCHIVE_CRON")

	// ── Copy ──
	setBool(&cfg.Copy.Enabled, "COPYTRADER_COPY_ENABLED")
	setStr(&cfg.Copy.SizingStrategy, "COPYTRADER_COPY_SIZING_STRATEGY")
	setFloat64(&cfg.Copy.CapitalRatio, "COPYTRADER_COPY_CAPITAL_RATIO")
	setFloat64(&cfg.Copy.FixedRatio, "COPYTRADER_COPY_FIXED_RATIO")
	setFloat64(&cfg.Copy.RiskPerTradePct, "COPYTRADER_COPY_RISK_PER_TRADE_PCT")
	setFloat64(&cfg.Copy.MaxPositionPct, "COPYTRADER_COPY_MAX_POSITION_PCT")
	setStringSlice(&cfg.Copy.AllowedProducts, "COPYTRADER_COPY_ALLOWED_PRODUCTS")
	setStringSlice(&cfg.Copy.AllowedSegments, "COPYTRADER_COPY_ALLOWED_SEGMENTS")
	setDuration(&cfg.Copy.HeartbeatInterval, "COPYTRADER_COPY_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Copy.HeartbeatTimeout, "COPYTRADER_COPY_HEARTBEAT_TIMEOUT")
	setDuration(&cfg.Copy.ReconnectBackoffMin, "COPYTRADER_COPY_RECONNECT_BACKOFF_MIN")
	setDuration(&cfg.Copy.ReconnectBackoffMax, "COPYTRADER_COPY_RECONNECT_BACKOFF_MAX")
	setInt(&cfg.Copy.MaxReconnectAttempts, "COPYTRADER_COPY_MAX_RECONNECT_ATTEMPTS")
	setDuration(&cfg.Copy.RecoveryLookback, "COPYTRADER_COPY_RECOVERY_LOOKBACK")
	setDuration(&cfg.Copy.DrainTimeout, "COPYTRADER_COPY_DRAIN_TIMEOUT")
	setDuration(&cfg.Copy.SkewWarnThreshold, "COPYTRADER_COPY_SKEW_WARN_THRESHOLD")
	setDuration(&cfg.Copy.FundsTTL, "COPYTRADER_COPY_FUNDS_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "COPYTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COPYTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "COPYTRADER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "COPYTRADER_MODE")
	setStr(&cfg.LogLevel, "COPYTRADER_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

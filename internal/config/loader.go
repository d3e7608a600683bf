package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CURVEBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CURVEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "RPC_URL") // compatibility alias
	setStr(&cfg.Chain.RPCURL, "CURVEBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "CURVEBOT_CHAIN_ID")
	setInt(&cfg.Chain.GasMultiplierPct, "CURVEBOT_CHAIN_GAS_MULTIPLIER_PCT")
	setDuration(&cfg.Chain.ReceiptPollInterval, "CURVEBOT_CHAIN_RECEIPT_POLL_INTERVAL")

	// ── Trading ──
	setUint64(&cfg.Trading.HistoryWindow, "CURVEBOT_TRADING_HISTORY_WINDOW")
	setInt(&cfg.Trading.RateLimit, "CURVEBOT_TRADING_RATE_LIMIT")
	setDuration(&cfg.Trading.RateWindow, "CURVEBOT_TRADING_RATE_WINDOW")
	setBool(&cfg.Trading.RequireRegistered, "CURVEBOT_TRADING_REQUIRE_REGISTERED")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "CURVEBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "CURVEBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "CURVEBOT_WALLET_KEY_PASSWORD")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "CURVEBOT_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.DSN, "CURVEBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "CURVEBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "CURVEBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "CURVEBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "CURVEBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "CURVEBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "CURVEBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "CURVEBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "CURVEBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "CURVEBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CURVEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "CURVEBOT_REDIS_URL")
	setStr(&cfg.Redis.Addr, "CURVEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CURVEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CURVEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CURVEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CURVEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CURVEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CURVEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CURVEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CURVEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CURVEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CURVEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CURVEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CURVEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CURVEBOT_S3_FORCE_PATH_STYLE")

	// ── Export ──
	setDuration(&cfg.Export.Interval, "CURVEBOT_EXPORT_INTERVAL")
	setBool(&cfg.Export.RunOnStart, "CURVEBOT_EXPORT_RUN_ON_START")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CURVEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias
	setInt(&cfg.Server.Port, "CURVEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CURVEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CURVEBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CURVEBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "CURVEBOT_SERVER_RATE_LIMIT_WINDOW")
	setDuration(&cfg.Server.WriteTimeout, "CURVEBOT_SERVER_WRITE_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CURVEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CURVEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CURVEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CURVEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CURVEBOT_MODE")
	setStr(&cfg.LogLevel, "CURVEBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(10_000), cfg.Trading.HistoryWindow)
	assert.Equal(t, time.Minute, cfg.Trading.RateWindow.Duration)
	assert.Equal(t, "server", cfg.Mode)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Chain.RPCURL = ""
	cfg.Chain.GasMultiplierPct = 90
	cfg.Wallet.EncryptedKeyPath = "/keys/operator.json"
	cfg.Redis.PoolSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed")
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "chain: rpc_url must not be empty")
	assert.Contains(t, msg, "gas_multiplier_pct")
	assert.Contains(t, msg, "wallet: key_password is required")
	assert.Contains(t, msg, "redis: pool_size")
}

func TestValidateExporterNeedsStorage(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "exporter"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires s3.enabled")

	cfg.S3.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.Export.Interval.Duration = time.Second
	require.Error(t, cfg.Validate())
}

func TestValidateOptionalStores(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Enabled = false
	cfg.Redis.Enabled = false
	err := cfg.Validate()
	require.Error(t, err, "registry gate without a registry")
	assert.Contains(t, err.Error(), "require_registered")

	cfg.Trading.RequireRegistered = false
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"
log_level = "debug"

[chain]
rpc_url = "https://rpc.testnet.example/v1/abc123"
chain_id = 11124
receipt_poll_interval = "250ms"

[trading]
history_window = 5000

[s3]
enabled = true
bucket = "exports"

[export]
interval = "30m"
`), 0o600))

	clearAliases(t)
	t.Setenv("CURVEBOT_SERVER_PORT", "9090")
	t.Setenv("CURVEBOT_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("CURVEBOT_TRADING_RATE_LIMIT", "3")
	t.Setenv("CURVEBOT_WALLET_PRIVATE_KEY", "0xabc")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, int64(11124), cfg.Chain.ChainID)
	assert.Equal(t, 250*time.Millisecond, cfg.Chain.ReceiptPollInterval.Duration)
	assert.Equal(t, uint64(5000), cfg.Trading.HistoryWindow)
	assert.Equal(t, 30*time.Minute, cfg.Export.Interval.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 3, cfg.Trading.RateLimit)
	assert.True(t, cfg.KeyConfig().Configured())
	assert.Equal(t, "0xabc", cfg.KeyConfig().RawSecret)
	// untouched defaults survive
	assert.Equal(t, 120, cfg.Chain.GasMultiplierPct)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = "), 0o600))
	_, err := Load(path)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestInvalidEnvIgnored(t *testing.T) {
	clearAliases(t)
	t.Setenv("CURVEBOT_SERVER_PORT", "not-a-port")
	t.Setenv("CURVEBOT_TRADING_RATE_WINDOW", "soon")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Trading.RateWindow.Duration)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Wallet.KeyPassword = "hunter2"
	cfg.Supabase.DSN = "postgres://u:p@db/app"
	cfg.Redis.URL = "redis://:secret@cache:6379/0"
	cfg.Server.APIKey = "k"
	cfg.Chain.RPCURL = "https://mainnet.example/v3/projectkey"
	cfg.Notify.Events = []string{"trade_failed"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Wallet.KeyPassword)
	assert.Equal(t, "***", out.Supabase.DSN)
	assert.Equal(t, "redis://cache:6379/***", out.Redis.URL)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "https://mainnet.example/***", out.Chain.RPCURL)
	assert.Empty(t, out.S3.SecretKey, "empty secrets stay empty")

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "trade_failed", cfg.Notify.Events[0])
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)

	local := Defaults()
	assert.Equal(t, "http://localhost:8545", RedactedConfig(&local).Chain.RPCURL)
}

// clearAliases blanks the unprefixed variables a CI host may export.
func clearAliases(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RPC_URL", "PORT", "DATABASE_URL"} {
		t.Setenv(k, "")
	}
}

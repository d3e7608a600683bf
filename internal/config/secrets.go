package config

import (
	"net/url"

	"github.com/alanyoungcy/curvebot/internal/wallet"
)

// RedactedConfig returns a copy of cfg with sensitive fields replaced by
// "***". Use it whenever the active configuration is logged or printed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)

	out.Redis.URL = redactURL(cfg.Redis.URL)
	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// The RPC URL often embeds a provider key in its path or query.
	out.Chain.RPCURL = redactURL(cfg.Chain.RPCURL)

	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	return out
}

// KeyConfig converts the wallet section for wallet.LoadSecret.
func (c *Config) KeyConfig() wallet.KeyConfig {
	return wallet.KeyConfig{
		RawSecret:        c.Wallet.PrivateKey,
		EncryptedKeyPath: c.Wallet.EncryptedKeyPath,
		KeyPassword:      c.Wallet.KeyPassword,
	}
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURL keeps scheme and host and hides credentials, path and query.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	if u.User == nil && (u.Path == "" || u.Path == "/") && u.RawQuery == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host + "/" + redacted
}

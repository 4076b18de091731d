package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LISTINGBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error so the bot can be
// configured from the environment alone. The returned Config has NOT been
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads LISTINGBOT_* environment variables and overwrites
// the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "LISTINGBOT_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.PageSize, "LISTINGBOT_POLYMARKET_PAGE_SIZE")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.MaxMarketsPerRun, "LISTINGBOT_PIPELINE_MAX_MARKETS_PER_RUN")
	setDuration(&cfg.Pipeline.Interval, "LISTINGBOT_PIPELINE_INTERVAL")
	setDuration(&cfg.Pipeline.ApprovalTimeout, "LISTINGBOT_PIPELINE_APPROVAL_TIMEOUT")
	setStr(&cfg.Pipeline.PlaceholderIcon, "LISTINGBOT_PIPELINE_PLACEHOLDER_ICON")
	setStringSlice(&cfg.Pipeline.GenericOptions, "LISTINGBOT_PIPELINE_GENERIC_OPTIONS")
	setDuration(&cfg.Pipeline.RequestPacing, "LISTINGBOT_PIPELINE_REQUEST_PACING")
	setDuration(&cfg.Pipeline.LockTTL, "LISTINGBOT_PIPELINE_LOCK_TTL")

	// ── Chat ──
	setStr(&cfg.Chat.Platform, "LISTINGBOT_CHAT_PLATFORM")
	setStr(&cfg.Chat.SlackToken, "LISTINGBOT_CHAT_SLACK_TOKEN")
	setStr(&cfg.Chat.SlackChannel, "LISTINGBOT_CHAT_SLACK_CHANNEL")
	setStr(&cfg.Chat.SlackBaseURL, "LISTINGBOT_CHAT_SLACK_BASE_URL")
	setStr(&cfg.Chat.DiscordToken, "LISTINGBOT_CHAT_DISCORD_TOKEN")
	setStr(&cfg.Chat.DiscordChannel, "LISTINGBOT_CHAT_DISCORD_CHANNEL")
	setStr(&cfg.Chat.DiscordBaseURL, "LISTINGBOT_CHAT_DISCORD_BASE_URL")

	// ── OpenAI ──
	setStr(&cfg.OpenAI.APIKey, "LISTINGBOT_OPENAI_API_KEY")
	setStr(&cfg.OpenAI.BaseURL, "LISTINGBOT_OPENAI_BASE_URL")
	setStr(&cfg.OpenAI.Model, "LISTINGBOT_OPENAI_MODEL")
	setStr(&cfg.OpenAI.Size, "LISTINGBOT_OPENAI_SIZE")
	setDuration(&cfg.OpenAI.Timeout, "LISTINGBOT_OPENAI_TIMEOUT")

	// ── Assets ──
	setStr(&cfg.Assets.Backend, "LISTINGBOT_ASSETS_BACKEND")
	setStr(&cfg.Assets.Repo, "LISTINGBOT_ASSETS_REPO")
	setStr(&cfg.Assets.Branch, "LISTINGBOT_ASSETS_BRANCH")
	setStr(&cfg.Assets.Token, "LISTINGBOT_ASSETS_TOKEN")
	setStr(&cfg.Assets.PathPrefix, "LISTINGBOT_ASSETS_PATH_PREFIX")
	setStr(&cfg.Assets.PublicBaseURL, "LISTINGBOT_ASSETS_PUBLIC_BASE_URL")
	setStr(&cfg.Assets.APIBaseURL, "LISTINGBOT_ASSETS_API_BASE_URL")

	// ── Chain ──
	setBool(&cfg.Chain.Enabled, "LISTINGBOT_CHAIN_ENABLED")
	setStr(&cfg.Chain.RPCURL, "LISTINGBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "LISTINGBOT_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.FactoryAddress, "LISTINGBOT_CHAIN_FACTORY_ADDRESS")
	setStr(&cfg.Chain.PrivateKey, "LISTINGBOT_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "LISTINGBOT_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "LISTINGBOT_CHAIN_KEY_PASSWORD")
	setUint64(&cfg.Chain.GasLimitFallback, "LISTINGBOT_CHAIN_GAS_LIMIT_FALLBACK")
	setDuration(&cfg.Chain.ReceiptTimeout, "LISTINGBOT_CHAIN_RECEIPT_TIMEOUT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "LISTINGBOT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "LISTINGBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "LISTINGBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "LISTINGBOT_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "LISTINGBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "LISTINGBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "LISTINGBOT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "LISTINGBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "LISTINGBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "LISTINGBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LISTINGBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LISTINGBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LISTINGBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LISTINGBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LISTINGBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LISTINGBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LISTINGBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LISTINGBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LISTINGBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "LISTINGBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LISTINGBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LISTINGBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LISTINGBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LISTINGBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.PublicBaseURL, "LISTINGBOT_S3_PUBLIC_BASE_URL")

	// ── Server ──
	setInt(&cfg.Server.Port, "LISTINGBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LISTINGBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LISTINGBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "LISTINGBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LISTINGBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LISTINGBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LISTINGBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setBool(&cfg.Notify.ChatSummary, "LISTINGBOT_NOTIFY_CHAT_SUMMARY")
	setStringSlice(&cfg.Notify.Events, "LISTINGBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LISTINGBOT_MODE")
	setStr(&cfg.LogLevel, "LISTINGBOT_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.

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

// Package config defines the top-level configuration for the listing bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LISTINGBOT_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Chat       ChatConfig       `toml:"chat"`
	OpenAI     OpenAIConfig     `toml:"openai"`
	Assets     AssetsConfig     `toml:"assets"`
	Chain      ChainConfig      `toml:"chain"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the market source endpoint.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	PageSize  int    `toml:"page_size"`
}

// PipelineConfig holds batch and approval parameters.
type PipelineConfig struct {
	MaxMarketsPerRun int      `toml:"max_markets_per_run"`
	Interval         duration `toml:"interval"`
	ApprovalTimeout  duration `toml:"approval_timeout"`
	PlaceholderIcon  string   `toml:"placeholder_icon"`
	// GenericOptions replaces the built-in generic option terms when set.
	GenericOptions []string `toml:"generic_options"`
	// RequestPacing is the minimum gap between two remote calls.
	RequestPacing duration `toml:"request_pacing"`
	LockTTL       duration `toml:"lock_ttl"`
}

// ChatConfig selects and configures the review channel.
type ChatConfig struct {
	Platform     string `toml:"platform"`
	SlackToken   string `toml:"slack_token"`
	SlackChannel string `toml:"slack_channel"`
	SlackBaseURL string `toml:"slack_base_url"`

	DiscordToken   string `toml:"discord_token"`
	DiscordChannel string `toml:"discord_channel"`
	DiscordBaseURL string `toml:"discord_base_url"`
}

// OpenAIConfig holds image generation parameters.
type OpenAIConfig struct {
	APIKey  string   `toml:"api_key"`
	BaseURL string   `toml:"base_url"`
	Model   string   `toml:"model"`
	Size    string   `toml:"size"`
	Timeout duration `toml:"timeout"`
}

// AssetsConfig selects where approved banners are published.
type AssetsConfig struct {
	Backend       string `toml:"backend"`
	Repo          string `toml:"repo"`
	Branch        string `toml:"branch"`
	Token         string `toml:"token"`
	PathPrefix    string `toml:"path_prefix"`
	PublicBaseURL string `toml:"public_base_url"`
	APIBaseURL    string `toml:"api_base_url"`
}

// ChainConfig holds the deployment target and signing key.
type ChainConfig struct {
	Enabled          bool     `toml:"enabled"`
	RPCURL           string   `toml:"rpc_url"`
	ChainID          int64    `toml:"chain_id"`
	FactoryAddress   string   `toml:"factory_address"`
	PrivateKey       string   `toml:"private_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	GasLimitFallback uint64   `toml:"gas_limit_fallback"`
	ReceiptTimeout   duration `toml:"receipt_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// RedisConfig holds Redis connection parameters. With Enabled false the
// pipeline uses in-process locks and pacing and the status bus is local.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PublicBaseURL  string `toml:"public_base_url"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is API requests per minute per client; 0 disables it.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	ChatSummary       bool     `toml:"chat_summary"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			PageSize:  100,
		},
		Pipeline: PipelineConfig{
			MaxMarketsPerRun: 10,
			Interval:         duration{5 * time.Minute},
			ApprovalTimeout:  duration{30 * time.Minute},
			PlaceholderIcon:  "https://placehold.co/64x64/png?text=%3F",
			RequestPacing:    duration{time.Second},
			LockTTL:          duration{2 * time.Minute},
		},
		Chat: ChatConfig{
			Platform:       "slack",
			SlackBaseURL:   "https://slack.com/api",
			DiscordBaseURL: "https://discord.com/api/v10",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "dall-e-3",
			Size:    "1024x1024",
			Timeout: duration{2 * time.Minute},
		},
		Assets: AssetsConfig{
			Backend:    "github",
			Branch:     "main",
			PathPrefix: "public/images/markets",
			APIBaseURL: "https://api.github.com",
		},
		Chain: ChainConfig{
			Enabled:          true,
			RPCURL:           "https://rpc.apechain.com",
			ChainID:          33139,
			GasLimitFallback: 8_000_000,
			ReceiptTimeout:   duration{3 * time.Minute},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "listingbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "listingbot",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			ChatSummary: true,
			Events:      []string{"run_summary", "market_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"once":   true,
	"loop":   true,
	"server": true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsPipeline reports whether the mode executes pipeline batches.
func (c *Config) RunsPipeline() bool {
	return c.Mode != "server"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: once, loop, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.PageSize < 1 {
		errs = append(errs, "polymarket: page_size must be >= 1")
	}

	// Pipeline
	if c.Pipeline.MaxMarketsPerRun < 1 {
		errs = append(errs, "pipeline: max_markets_per_run must be >= 1")
	}
	if c.Pipeline.Interval.Duration <= 0 {
		errs = append(errs, "pipeline: interval must be > 0")
	}
	if c.Pipeline.ApprovalTimeout.Duration <= 0 {
		errs = append(errs, "pipeline: approval_timeout must be > 0")
	}
	if c.Pipeline.PlaceholderIcon == "" {
		errs = append(errs, "pipeline: placeholder_icon must not be empty")
	}
	if c.Pipeline.LockTTL.Duration <= 0 {
		errs = append(errs, "pipeline: lock_ttl must be > 0")
	}

	if c.RunsPipeline() {
		switch c.Chat.Platform {
		case "slack":
			if c.Chat.SlackToken == "" || c.Chat.SlackChannel == "" {
				errs = append(errs, "chat: slack_token and slack_channel are required for platform slack")
			}
		case "discord":
			if c.Chat.DiscordToken == "" || c.Chat.DiscordChannel == "" {
				errs = append(errs, "chat: discord_token and discord_channel are required for platform discord")
			}
		default:
			errs = append(errs, fmt.Sprintf("chat: unknown platform %q (valid: slack, discord)", c.Chat.Platform))
		}

		if c.OpenAI.APIKey == "" {
			errs = append(errs, "openai: api_key is required")
		}

		switch c.Assets.Backend {
		case "github":
			if c.Assets.Repo == "" || c.Assets.Token == "" {
				errs = append(errs, "assets: repo and token are required for backend github")
			}
		case "s3":
			if c.Assets.PublicBaseURL == "" {
				errs = append(errs, "assets: public_base_url is required for backend s3")
			}
		default:
			errs = append(errs, fmt.Sprintf("assets: unknown backend %q (valid: github, s3)", c.Assets.Backend))
		}

		if c.Chain.Enabled {
			if c.Chain.RPCURL == "" {
				errs = append(errs, "chain: rpc_url must not be empty")
			}
			if c.Chain.ChainID <= 0 {
				errs = append(errs, "chain: chain_id must be positive")
			}
			if c.Chain.FactoryAddress == "" {
				errs = append(errs, "chain: factory_address must not be empty")
			}
			if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
				errs = append(errs, "chain: either private_key or encrypted_key_path must be set")
			}
			if c.Chain.EncryptedKeyPath != "" && c.Chain.KeyPassword == "" {
				errs = append(errs, "chain: key_password is required when encrypted_key_path is set")
			}
		}
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.RunsPipeline() && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

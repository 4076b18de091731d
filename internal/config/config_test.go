package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Chat.SlackToken = "xoxb-test"
	cfg.Chat.SlackChannel = "C123"
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Assets.Repo = "acme/frontend"
	cfg.Assets.Token = "ghp_test"
	cfg.Chain.FactoryAddress = "0x0000000000000000000000000000000000000001"
	cfg.Chain.PrivateKey = "deadbeef"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Pipeline.MaxMarketsPerRun != 10 {
		t.Errorf("max_markets_per_run = %d, want 10", cfg.Pipeline.MaxMarketsPerRun)
	}
	if cfg.Pipeline.ApprovalTimeout.Duration != 30*time.Minute {
		t.Errorf("approval_timeout = %v, want 30m", cfg.Pipeline.ApprovalTimeout.Duration)
	}
	if cfg.Chain.GasLimitFallback != 8_000_000 {
		t.Errorf("gas_limit_fallback = %d", cfg.Chain.GasLimitFallback)
	}
	if cfg.Assets.PathPrefix != "public/images/markets" {
		t.Errorf("path_prefix = %q", cfg.Assets.PathPrefix)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"missing slack token", func(c *Config) { c.Chat.SlackToken = "" }, "slack_token"},
		{"discord needs channel", func(c *Config) { c.Chat.Platform = "discord"; c.Chat.DiscordToken = "t" }, "discord_channel"},
		{"missing openai key", func(c *Config) { c.OpenAI.APIKey = "" }, "openai"},
		{"s3 assets need base url", func(c *Config) { c.Assets.Backend = "s3" }, "public_base_url"},
		{"encrypted key needs password", func(c *Config) {
			c.Chain.PrivateKey = ""
			c.Chain.EncryptedKeyPath = "/tmp/key.json"
		}, "key_password"},
		{"chain disabled skips key", func(c *Config) {
			c.Chain.Enabled = false
			c.Chain.PrivateKey = ""
		}, ""},
		{"server mode skips pipeline deps", func(c *Config) {
			c.Mode = "server"
			c.Chat.SlackToken = ""
			c.OpenAI.APIKey = ""
		}, ""},
		{"zero batch size", func(c *Config) { c.Pipeline.MaxMarketsPerRun = 0 }, "max_markets_per_run"},
		{"pool bounds", func(c *Config) { c.Database.PoolMinConns = 20 }, "pool_min_conns"},
		{"redis disabled skips addr", func(c *Config) { c.Redis.Enabled = false; c.Redis.Addr = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "nope"
	cfg.Server.Port = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "mode") || !strings.Contains(err.Error(), "server: port") {
		t.Errorf("error should list both problems: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "loop"

[pipeline]
max_markets_per_run = 25
interval = "90s"
generic_options = ["field", "other"]

[chat]
platform = "discord"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LISTINGBOT_PIPELINE_APPROVAL_TIMEOUT", "45m")
	t.Setenv("LISTINGBOT_CHAT_DISCORD_TOKEN", "bot-token")
	t.Setenv("LISTINGBOT_REDIS_ENABLED", "false")
	t.Setenv("LISTINGBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LISTINGBOT_PIPELINE_MAX_MARKETS_PER_RUN", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "loop" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Pipeline.MaxMarketsPerRun != 25 {
		t.Errorf("unparsable env must not override: got %d", cfg.Pipeline.MaxMarketsPerRun)
	}
	if cfg.Pipeline.Interval.Duration != 90*time.Second {
		t.Errorf("interval = %v", cfg.Pipeline.Interval.Duration)
	}
	if cfg.Pipeline.ApprovalTimeout.Duration != 45*time.Minute {
		t.Errorf("approval_timeout = %v", cfg.Pipeline.ApprovalTimeout.Duration)
	}
	if cfg.Chat.Platform != "discord" || cfg.Chat.DiscordToken != "bot-token" {
		t.Errorf("chat = %+v", cfg.Chat)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled by env")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	if len(cfg.Pipeline.GenericOptions) != 2 {
		t.Errorf("generic options = %v", cfg.Pipeline.GenericOptions)
	}
	// Untouched sections keep their defaults.
	if cfg.OpenAI.Model != "dall-e-3" {
		t.Errorf("openai model = %q", cfg.OpenAI.Model)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "full" {
		t.Errorf("mode = %q, want default", cfg.Mode)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[pipeline]\ninterval = \"soon\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error for bad duration")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Database.DSN = "postgres://u:p@h/db"
	cfg.Notify.Events = []string{"run_summary"}

	out := RedactedConfig(&cfg)
	for name, v := range map[string]string{
		"slack token": out.Chat.SlackToken,
		"openai key":  out.OpenAI.APIKey,
		"asset token": out.Assets.Token,
		"private key": out.Chain.PrivateKey,
		"dsn":         out.Database.DSN,
	} {
		if v != redacted {
			t.Errorf("%s not redacted: %q", name, v)
		}
	}
	if out.Chat.SlackChannel != "C123" {
		t.Errorf("non-secret changed: %q", out.Chat.SlackChannel)
	}
	if cfg.Chat.SlackToken != "xoxb-test" {
		t.Error("original mutated")
	}
	out.Notify.Events[0] = "changed"
	if cfg.Notify.Events[0] != "run_summary" {
		t.Error("slices must be copied")
	}
}

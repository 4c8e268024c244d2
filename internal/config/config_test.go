package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Fatalf("addr default = %q", cfg.Server.Addr)
	}
	if cfg.Redis.Addr != DefaultRedisAddr || cfg.Redis.TimeoutSeconds != DefaultRedisTimeout {
		t.Fatalf("redis defaults = %+v", cfg.Redis)
	}
	if cfg.Announce.BannerText != DefaultBannerText {
		t.Fatalf("banner default = %q", cfg.Announce.BannerText)
	}
	if cfg.Retention.Pattern != DefaultSweepPattern || cfg.Retention.Enabled {
		t.Fatalf("retention defaults = %+v", cfg.Retention)
	}
}

func TestLoadParsesAndCleansValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9999"
shared_secret = " 'hunter2' "

[discord]
bot_token = "\"abc123\""
match_channel_id = "111"

[redis]
addr = "redis:6379"
db = 3

[retention]
max_age_days = 14
enabled = true

[export]
smtp_host = "smtp.example.com"
from = "relay@example.com"
to = "ops@example.com"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.SharedSecret != "hunter2" {
		t.Fatalf("secret not cleaned: %q", cfg.Server.SharedSecret)
	}
	if cfg.Discord.BotToken != "abc123" {
		t.Fatalf("token not cleaned: %q", cfg.Discord.BotToken)
	}
	if cfg.Redis.DB != 3 || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.Retention.MaxAgeDays != 14 || !cfg.Retention.Enabled {
		t.Fatalf("retention = %+v", cfg.Retention)
	}
	if !cfg.Export.MailConfigured() {
		t.Fatal("export mail should be configured")
	}
	if cfg.Export.SMTPPort != DefaultSMTPPort {
		t.Fatalf("smtp port default lost: %d", cfg.Export.SMTPPort)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing bot token to fail validation")
	}
	cfg.Discord.BotToken = "abc"
	cfg.Redis.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing redis addr to fail validation")
	}
}

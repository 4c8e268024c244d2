// Package config loads and exposes application configuration (TOML).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultRedisAddr      = "127.0.0.1:6379"
	DefaultRedisTimeout   = 8
	DefaultBannerText     = "Someone is looking for game!"
	DefaultRetentionDays  = 1
	DefaultSweepPattern   = "30 5 * * *"
	DefaultExportPattern  = "0 6 * * *"
	DefaultSMTPPort       = 587
	DefaultExportSubject  = "Queue sessions export"
	DefaultGatewayTimeout = 12
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Discord   DiscordConfig   `toml:"discord"`
	Redis     RedisConfig     `toml:"redis"`
	Announce  AnnounceConfig  `toml:"announce"`
	Retention RetentionConfig `toml:"retention"`
	Export    ExportConfig    `toml:"export"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listen address and the shared webhook secret.
// When SharedSecret is empty, webhook authentication is not enforced.
type ServerConfig struct {
	Addr         string `toml:"addr"`
	SharedSecret string `toml:"shared_secret"`
}

// DiscordConfig holds the bot credentials and the channels the relay manages.
type DiscordConfig struct {
	BotToken       string `toml:"bot_token"`
	ApplicationID  string `toml:"application_id"`
	PublicKey      string `toml:"public_key"`
	MatchChannelID string `toml:"match_channel_id"` // parent channel for match threads
	LFGChannelID   string `toml:"lfg_channel_id"`   // channel for the looking-for-game banner
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// RedisConfig holds the key-value store connection parameters.
type RedisConfig struct {
	Addr           string `toml:"addr"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// AnnounceConfig holds the banner text for the looking-for-game message.
type AnnounceConfig struct {
	BannerText string `toml:"banner_text"`
}

// RetentionConfig holds the thread retention policy and sweep schedule.
type RetentionConfig struct {
	MaxAgeDays int    `toml:"max_age_days"`
	Pattern    string `toml:"pattern"`
	Enabled    bool   `toml:"enabled"`
}

// ExportConfig holds the daily export schedule and SMTP delivery settings.
type ExportConfig struct {
	Pattern  string `toml:"pattern"`
	Enabled  bool   `toml:"enabled"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	To       string `toml:"to"`
}

// MailConfigured reports whether SMTP delivery has the required fields.
func (c ExportConfig) MailConfigured() bool {
	return c.SMTPHost != "" && c.From != "" && c.To != ""
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Discord: DiscordConfig{
			TimeoutSeconds: DefaultGatewayTimeout,
		},
		Redis: RedisConfig{
			Addr:           DefaultRedisAddr,
			TimeoutSeconds: DefaultRedisTimeout,
		},
		Announce: AnnounceConfig{
			BannerText: DefaultBannerText,
		},
		Retention: RetentionConfig{
			MaxAgeDays: DefaultRetentionDays,
			Pattern:    DefaultSweepPattern,
		},
		Export: ExportConfig{
			Pattern:  DefaultExportPattern,
			SMTPPort: DefaultSMTPPort,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	cfg.Discord.BotToken = cleanValue(cfg.Discord.BotToken)
	cfg.Server.SharedSecret = cleanValue(cfg.Server.SharedSecret)
	return cfg, nil
}

// Validate checks the fields every deployment needs. Per-feature fields
// (LFG channel, SMTP) are checked by the component that uses them so the
// rest of the relay keeps working without them.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Discord.BotToken) == "" {
		return fmt.Errorf("discord.bot_token is required")
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("redis.addr is required")
	}
	return nil
}

// cleanValue strips whitespace and stray quotes copied from env files.
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"`)
	v = strings.Trim(v, "'")
	return v
}

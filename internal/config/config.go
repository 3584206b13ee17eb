package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogDev   bool   `mapstructure:"LOG_DEV"`
	Instance string `mapstructure:"INSTANCE_ID"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	MatchInterval time.Duration `mapstructure:"MATCH_INTERVAL"`
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`

	AdmissionTimeout time.Duration `mapstructure:"ADMISSION_TIMEOUT"`
	BindTimeout      time.Duration `mapstructure:"BIND_TIMEOUT"`
	BindPoll         time.Duration `mapstructure:"BIND_POLL_INTERVAL"`
	LookupTimeout    time.Duration `mapstructure:"LOOKUP_TIMEOUT"`

	VoteThreshold     int    `mapstructure:"VOTE_THRESHOLD"`
	PrivilegedVoters  string `mapstructure:"PRIVILEGED_VOTERS"`
	PrivilegedWeight  int    `mapstructure:"PRIVILEGED_WEIGHT"`
	RequireAdmissions bool   `mapstructure:"REQUIRE_ADMISSIONS"`

	GameClientURL     string        `mapstructure:"GAME_CLIENT_URL"`
	GameClientTimeout time.Duration `mapstructure:"GAME_CLIENT_TIMEOUT"`

	DiscordToken          string `mapstructure:"DISCORD_TOKEN"`
	DiscordGuildID        string `mapstructure:"DISCORD_GUILD_ID"`
	DiscordVoiceChannelID string `mapstructure:"DISCORD_VOICE_CHANNEL_ID"`

	ArchiveBucket    string `mapstructure:"ARCHIVE_BUCKET"`
	ArchiveEndpoint  string `mapstructure:"ARCHIVE_ENDPOINT"`
	ArchiveRegion    string `mapstructure:"ARCHIVE_REGION"`
	ArchiveAccessKey string `mapstructure:"ARCHIVE_ACCESS_KEY"`
	ArchiveSecretKey string `mapstructure:"ARCHIVE_SECRET_KEY"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                ":8080",
	"LOG_LEVEL":                "info",
	"LOG_DEV":                  false,
	"INSTANCE_ID":              "",
	"DATABASE_URL":             "",
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"SESSION_TTL":              "60s",
	"MATCH_INTERVAL":           "5s",
	"SWEEP_INTERVAL":           "15s",
	"ADMISSION_TIMEOUT":        "3s",
	"BIND_TIMEOUT":             "5s",
	"BIND_POLL_INTERVAL":       "250ms",
	"LOOKUP_TIMEOUT":           "5s",
	"VOTE_THRESHOLD":           6,
	"PRIVILEGED_VOTERS":        "",
	"PRIVILEGED_WEIGHT":        6,
	"REQUIRE_ADMISSIONS":       true,
	"GAME_CLIENT_URL":          "",
	"GAME_CLIENT_TIMEOUT":      "5s",
	"DISCORD_TOKEN":            "",
	"DISCORD_GUILD_ID":         "",
	"DISCORD_VOICE_CHANNEL_ID": "",
	"ARCHIVE_BUCKET":           "",
	"ARCHIVE_ENDPOINT":         "",
	"ARCHIVE_REGION":           "auto",
	"ARCHIVE_ACCESS_KEY":       "",
	"ARCHIVE_SECRET_KEY":       "",
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Instance == "" {
		// Session bindings are tagged with the instance; the hostname is
		// unique enough per replica.
		cfg.Instance, _ = os.Hostname()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.VoteThreshold <= 0 {
		return fmt.Errorf("VOTE_THRESHOLD must be positive, got %d", c.VoteThreshold)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.BindTimeout <= 0 || c.BindPoll <= 0 {
		return fmt.Errorf("BIND_TIMEOUT and BIND_POLL_INTERVAL must be positive")
	}
	return nil
}

// PrivilegedList splits PRIVILEGED_VOTERS on commas.
func (c *Config) PrivilegedList() []string {
	var out []string
	for _, p := range strings.Split(c.PrivilegedVoters, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

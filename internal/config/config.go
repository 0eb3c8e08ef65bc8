package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	DBPath      string `envconfig:"DB_PATH" default:"focusbot.db"`

	// Slack (optional, the bot starts without Slack in admin-only mode)
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackAppToken string `envconfig:"SLACK_APP_TOKEN"` // xapp- token for Socket Mode
	// AdminUserIDs may run the admin slash commands. Empty means anyone.
	AdminUserIDs []string `envconfig:"SLACK_ADMIN_IDS"`

	// Daily quota
	DailyTaskLimit int `envconfig:"DAILY_TASK_LIMIT" default:"10"`

	// Reset scheduler
	ResetHour    int           `envconfig:"RESET_HOUR" default:"0"`
	ResetMinute  int           `envconfig:"RESET_MINUTE" default:"0"`
	PollInterval time.Duration `envconfig:"RESET_POLL_INTERVAL" default:"1m"`

	// Voice session tracking
	GraceWindow time.Duration `envconfig:"GRACE_WINDOW" default:"2m"`

	// Scoring tunables (optional YAML file; defaults apply when unset)
	ScoringConfigPath string `envconfig:"SCORING_CONFIG_PATH"`

	// Query cache
	CacheCapacity int           `envconfig:"CACHE_CAPACITY" default:"1024"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	// Admin API
	AdminListenAddr string `envconfig:"ADMIN_LISTEN_ADDR" default:":8090"`
	AdminAuthMode   string `envconfig:"ADMIN_AUTH_MODE" default:"api-key"`
	AdminAPIKey     string `envconfig:"ADMIN_API_KEY"`
	AdminJWTSecret  string `envconfig:"ADMIN_JWT_SECRET"`
}

// SlackEnabled returns true if Slack tokens are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// Validate checks values that envconfig cannot express.
func (c *Config) Validate() error {
	if c.DailyTaskLimit <= 0 {
		return fmt.Errorf("DAILY_TASK_LIMIT must be positive, got %d", c.DailyTaskLimit)
	}
	if c.ResetHour < 0 || c.ResetHour > 23 {
		return fmt.Errorf("RESET_HOUR must be 0-23, got %d", c.ResetHour)
	}
	if c.ResetMinute < 0 || c.ResetMinute > 59 {
		return fmt.Errorf("RESET_MINUTE must be 0-59, got %d", c.ResetMinute)
	}
	if c.PollInterval <= 0 || c.PollInterval > time.Minute {
		return fmt.Errorf("RESET_POLL_INTERVAL must be positive and at most 1m, got %s", c.PollInterval)
	}
	switch c.AdminAuthMode {
	case "none", "api-key":
		// An empty ADMIN_API_KEY in api-key mode locks the API down to
		// the open probe endpoints.
	case "jwt":
		if c.AdminJWTSecret == "" {
			return fmt.Errorf("ADMIN_JWT_SECRET is required when ADMIN_AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("ADMIN_AUTH_MODE must be none, api-key or jwt, got %q", c.AdminAuthMode)
	}
	return nil
}

// Load reads configuration from the environment, with a .env file as
// fallback when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

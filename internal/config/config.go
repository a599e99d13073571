// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Telegram bot credentials. The bot token doubles as the HMAC key
	// material for initData verification.
	BotToken       string `env:"BOT_TOKEN,required"`
	OperatorChatID int64  `env:"OPERATOR_CHAT_ID,required"`

	// Telegram Bot API endpoint, overridable for local test servers.
	TelegramAPIBaseURL string `env:"TELEGRAM_API_BASE_URL" envDefault:"https://api.telegram.org"`

	// The single browser origin allowed to call the API
	// (e.g. https://cookiespooky.github.io).
	AllowedOrigin string `env:"ALLOWED_ORIGIN,required"`

	// Maximum age of a signed initData payload before it is rejected as expired.
	AuthTTL time.Duration `env:"AUTH_TTL" envDefault:"3600s"`

	// Minimum interval between accepted leads from the same user.
	LeadRateLimit time.Duration `env:"LEAD_RATE_LIMIT" envDefault:"300s"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL      string        `env:"REDIS_URL,required"`
	StatsCacheTTL time.Duration `env:"STATS_CACHE_TTL" envDefault:"30s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// CanonicalOrigin reduces the configured allowed origin to scheme://host[:port].
// Path, query, and fragment are discarded, so values like
// "https://cookiespooky.github.io/np-tma" gate on the origin alone.
func (c *Config) CanonicalOrigin() (string, error) {
	parsed, err := url.Parse(c.AllowedOrigin)
	if err != nil {
		return "", fmt.Errorf("failed to parse allowed origin: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("allowed origin %q must include scheme and host", c.AllowedOrigin)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

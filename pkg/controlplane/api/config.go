package api

import (
	"os"
	"time"

	"github.com/drover-ai/drover/internal/logger"
)

// EnvAPISecret is the environment variable for the operator JWT signing
// secret. It takes precedence over the config file.
const EnvAPISecret = "DROVER_API_SECRET"

// EnvWebhookSecret is the environment variable for the webhook HMAC shared
// secret. It takes precedence over the config file.
const EnvWebhookSecret = "DROVER_WEBHOOK_SECRET"

// Config configures the REST API HTTP server.
type Config struct {
	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	// Default: 30s, sized for synchronous review round-trips.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RequestTimeout bounds a single request end to end. Webhook reviews
	// call the Auditor synchronously, so this must exceed the engine's
	// review timeout.
	// Default: 120s
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// JWT configures operator token authentication.
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`

	// WebhookSecret is the HMAC shared secret for /webhook/vcs deliveries.
	// Can also be set via DROVER_WEBHOOK_SECRET, which takes precedence.
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"`
}

// JWTConfig configures operator token generation and validation.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	// Can also be set via DROVER_API_SECRET, which takes precedence.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// TokenDuration is the operator token lifetime.
	// Default: 24h
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.JWT.TokenDuration == 0 {
		c.JWT.TokenDuration = 24 * time.Hour
	}
}

// GetJWTSecret returns the JWT secret, preferring the environment variable.
func (c *Config) GetJWTSecret() string {
	envSecret := os.Getenv(EnvAPISecret)
	if envSecret != "" {
		if c.JWT.Secret != "" && c.JWT.Secret != envSecret {
			logger.Warn("JWT secret from environment variable overrides config file value",
				"env_var", EnvAPISecret)
		}
		return envSecret
	}
	return c.JWT.Secret
}

// GetWebhookSecret returns the webhook HMAC secret, preferring the
// environment variable.
func (c *Config) GetWebhookSecret() string {
	envSecret := os.Getenv(EnvWebhookSecret)
	if envSecret != "" {
		if c.WebhookSecret != "" && c.WebhookSecret != envSecret {
			logger.Warn("webhook secret from environment variable overrides config file value",
				"env_var", EnvWebhookSecret)
		}
		return envSecret
	}
	return c.WebhookSecret
}

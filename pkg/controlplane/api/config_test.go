package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TokenDuration)
}

func TestConfigApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Port:           9090,
		RequestTimeout: 5 * time.Minute,
		JWT:            JWTConfig{TokenDuration: time.Hour},
	}
	cfg.applyDefaults()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.JWT.TokenDuration)
}

func TestGetJWTSecretPrefersEnvironment(t *testing.T) {
	cfg := Config{JWT: JWTConfig{Secret: "from-config"}}
	assert.Equal(t, "from-config", cfg.GetJWTSecret())

	t.Setenv(EnvAPISecret, "from-env")
	assert.Equal(t, "from-env", cfg.GetJWTSecret())

	empty := Config{}
	assert.Equal(t, "from-env", empty.GetJWTSecret())
}

func TestGetWebhookSecretPrefersEnvironment(t *testing.T) {
	cfg := Config{WebhookSecret: "from-config"}
	assert.Equal(t, "from-config", cfg.GetWebhookSecret())

	t.Setenv(EnvWebhookSecret, "from-env")
	assert.Equal(t, "from-env", cfg.GetWebhookSecret())
}

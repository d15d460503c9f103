package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TIMEOUT_REASONING", "")
	t.Setenv("GATEWAY_MODE", "")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.Timeouts.Reasoning)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Persistence)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Messaging)
	assert.Equal(t, 120*time.Second, cfg.Timeouts.Bulk)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Webhook)
	assert.Equal(t, 10*time.Minute, cfg.StateTTL)
	assert.Equal(t, "whatsmeow", cfg.GatewayMode)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TIMEOUT_MESSAGING", "3s")
	t.Setenv("BREAKER_THRESHOLD_REASONING", "7")
	t.Setenv("GATEWAY_MODE", "HTTP")
	t.Setenv("S3_PATH_STYLE", "true")

	cfg := Load()

	assert.Equal(t, 3*time.Second, cfg.Timeouts.Messaging)
	assert.Equal(t, uint32(7), cfg.Breakers.ReasoningThreshold)
	assert.Equal(t, "http", cfg.GatewayMode)
	assert.True(t, cfg.S3.PathStyle)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("TIMEOUT_BULK", "soon")
	t.Setenv("BREAKER_THRESHOLD_MESSAGING", "-1")

	cfg := Load()

	assert.Equal(t, 120*time.Second, cfg.Timeouts.Bulk)
	assert.Equal(t, uint32(5), cfg.Breakers.MessagingThreshold)
}

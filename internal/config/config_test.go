package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "CHANNEL_URL", "CHANNEL_RECONNECT", "CHANNEL_MAX_RETRIES", "CHANNEL_RETRY_DELAY",
		"CHANNEL_MAX_RETRY_DELAY", "CAMERA_URL", "CAMERA_FPS", "CAMERA_USERNAME", "CAMERA_PASSWORD",
		"MOOD_INTERVAL", "MOOD_ENGINE", "MODELS_URL", "ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY",
		"ARK_MODEL", "ARK_BASE_URL", "ARK_REGION",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, "ws://localhost:3000/ws", cfg.Channel.URL)
	assert.True(t, cfg.Channel.Reconnect)
	assert.Equal(t, 5, cfg.Channel.MaxRetries)
	assert.Equal(t, time.Second, cfg.Channel.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Channel.MaxRetryDelay)
	assert.Equal(t, "", cfg.Camera.URL)
	assert.Equal(t, 5.0, cfg.Camera.FPS)
	assert.Equal(t, time.Second, cfg.Mood.Interval)
	assert.Equal(t, EngineRemote, cfg.Mood.Engine)
	assert.Equal(t, "http://localhost:3000/models", cfg.Mood.ModelsURL)
	assert.False(t, cfg.Vision.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CHANNEL_RECONNECT", "false")
	t.Setenv("CHANNEL_MAX_RETRIES", "-3")
	t.Setenv("CHANNEL_RETRY_DELAY", "2s")
	t.Setenv("CHANNEL_MAX_RETRY_DELAY", "500ms")
	t.Setenv("MOOD_ENGINE", "ARK")
	t.Setenv("MOOD_INTERVAL", "250ms")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("ARK_MODEL", "vision-model")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.False(t, cfg.Channel.Reconnect)
	assert.Equal(t, 0, cfg.Channel.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Channel.MaxRetryDelay)
	assert.Equal(t, EngineArk, cfg.Mood.Engine)
	assert.Equal(t, 250*time.Millisecond, cfg.Mood.Interval)
	assert.True(t, cfg.Vision.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":              "80 80",
		"CHANNEL_RECONNECT": "maybe",
		"MOOD_INTERVAL":     "-1s",
		"MOOD_ENGINE":       "opencv",
		"CAMERA_FPS":        "fast",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 2*time.Second, cfg.TypingIdle)
	assert.Equal(t, 3*time.Second, cfg.TypingDisplay)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
	assert.Equal(t, 1024, cfg.WriteBufferSize)
	assert.Equal(t, "memory", cfg.ScopeBackend)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHATSYNC_SERVER_URL", "wss://chat.example.com/socket")
	t.Setenv("CHATSYNC_RECONNECT_ATTEMPTS", "3")
	t.Setenv("CHATSYNC_RECONNECT_DELAY", "250ms")
	t.Setenv("CHATSYNC_HISTORY_LIMIT", "20")
	t.Setenv("CHATSYNC_SCOPE_BACKEND", "redis")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/socket", cfg.ServerURL)
	assert.Equal(t, 3, cfg.ReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, "redis", cfg.ScopeBackend)
	// Untouched values keep their defaults.
	assert.Equal(t, "http://localhost:5000", cfg.HistoryURL)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("CHATSYNC_RECONNECT_DELAY", "soon")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScopeBackend = "disk"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.HistoryLimit = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ServerURL = ""
	assert.Error(t, cfg.Validate())
}

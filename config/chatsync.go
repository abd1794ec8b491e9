package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ChatConfig holds client configuration.
type ChatConfig struct {
	ServerURL  string `json:"server_url" env:"CHATSYNC_SERVER_URL"`
	HistoryURL string `json:"history_url" env:"CHATSYNC_HISTORY_URL"`
	AuthToken  string `json:"-" env:"CHATSYNC_AUTH_TOKEN"`

	ReconnectAttempts int           `json:"reconnect_attempts" env:"CHATSYNC_RECONNECT_ATTEMPTS"`
	ReconnectDelay    time.Duration `json:"reconnect_delay" env:"CHATSYNC_RECONNECT_DELAY"`
	DialTimeout       time.Duration `json:"dial_timeout" env:"CHATSYNC_DIAL_TIMEOUT"`
	PingInterval      time.Duration `json:"ping_interval" env:"CHATSYNC_PING_INTERVAL"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"CHATSYNC_WRITE_TIMEOUT"`
	ReadBufferSize    int           `json:"read_buffer_size" env:"CHATSYNC_READ_BUFFER"`
	WriteBufferSize   int           `json:"write_buffer_size" env:"CHATSYNC_WRITE_BUFFER"`
	SendBuffer        int           `json:"send_buffer" env:"CHATSYNC_SEND_BUFFER"`

	HistoryLimit   int           `json:"history_limit" env:"CHATSYNC_HISTORY_LIMIT"`
	RequestTimeout time.Duration `json:"request_timeout" env:"CHATSYNC_REQUEST_TIMEOUT"`

	TypingIdle    time.Duration `json:"typing_idle" env:"CHATSYNC_TYPING_IDLE"`
	TypingDisplay time.Duration `json:"typing_display" env:"CHATSYNC_TYPING_DISPLAY"`

	// ScopeBackend is "memory" or "redis".
	ScopeBackend string `json:"scope_backend" env:"CHATSYNC_SCOPE_BACKEND"`
	LogLevel     string `json:"log_level" env:"CHATSYNC_LOG_LEVEL"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ChatConfig {
	return &ChatConfig{
		ServerURL:         "ws://localhost:5000/socket",
		HistoryURL:        "http://localhost:5000",
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		DialTimeout:       10 * time.Second,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBuffer:        256,
		HistoryLimit:      50,
		RequestTimeout:    10 * time.Second,
		TypingIdle:        2 * time.Second,
		TypingDisplay:     3 * time.Second,
		ScopeBackend:      "memory",
		LogLevel:          "info",
	}
}

// FromEnv overlays CHATSYNC_* environment variables on the defaults.
func FromEnv() (*ChatConfig, error) {
	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later.
func (c *ChatConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("config: server url is required")
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("config: reconnect attempts must not be negative")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("config: history limit must be positive")
	}
	switch c.ScopeBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown scope backend %q", c.ScopeBackend)
	}
	return nil
}

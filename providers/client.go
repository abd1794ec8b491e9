// Package providers wires the chat client together from configuration
// and exposes it over HTTP routes and tool definitions.
package providers

import (
	"context"
	"time"

	"github.com/orchestra-mcp/chatsync/config"
	"github.com/orchestra-mcp/chatsync/src/connection"
	"github.com/orchestra-mcp/chatsync/src/history"
	"github.com/orchestra-mcp/chatsync/src/scope"
	"github.com/orchestra-mcp/chatsync/src/service"
	"github.com/orchestra-mcp/chatsync/src/transport"
	"github.com/orchestra-mcp/chatsync/src/typing"
	"github.com/rs/zerolog"
)

// ChatClient owns the one connection manager and the service built on it.
type ChatClient struct {
	active  bool
	cfg     *config.ChatConfig
	logger  zerolog.Logger
	dialer  connection.Dialer
	conn    *connection.Manager
	history *history.Client
	scopes  scope.Store
	redis   *scope.RedisStore
	relay   scope.Sync
	service *service.Service
}

// NewChatClient creates an inactive client for cfg.
func NewChatClient(cfg *config.ChatConfig, logger zerolog.Logger) *ChatClient {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &ChatClient{cfg: cfg, logger: logger}
}

// WithDialer replaces the WebSocket dialer. It must be called before
// Activate.
func (p *ChatClient) WithDialer(d connection.Dialer) *ChatClient {
	p.dialer = d
	return p
}

func (p *ChatClient) ID() string      { return "orchestra/chatsync" }
func (p *ChatClient) Name() string    { return "Chat Sync" }
func (p *ChatClient) Version() string { return "0.1.0" }
func (p *ChatClient) IsActive() bool  { return p.active }

// Activate builds the transport, connection manager, history client,
// scope store and service. Nothing is dialed until a session opens.
func (p *ChatClient) Activate(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	if p.dialer == nil {
		p.dialer = transport.NewDialer(transport.Config{
			URL:              p.cfg.ServerURL,
			Token:            p.cfg.AuthToken,
			HandshakeTimeout: p.cfg.DialTimeout,
			WriteTimeout:     p.cfg.WriteTimeout,
			PingInterval:     p.cfg.PingInterval,
			ReadBufferSize:   p.cfg.ReadBufferSize,
			WriteBufferSize:  p.cfg.WriteBufferSize,
		}, p.logger)
	}
	p.conn = connection.New(p.dialer, connection.Policy{
		Attempts:    p.cfg.ReconnectAttempts,
		Delay:       p.cfg.ReconnectDelay,
		DialTimeout: p.cfg.DialTimeout,
		SendBuffer:  p.cfg.SendBuffer,
	}, p.logger)
	p.history = history.New(history.Config{
		BaseURL: p.cfg.HistoryURL,
		Token:   p.cfg.AuthToken,
		Timeout: p.cfg.RequestTimeout,
	}, p.logger)

	p.initScopes(ctx)

	p.service = service.New(p.conn, p.history, p.scopes, service.Options{
		HistoryLimit: p.cfg.HistoryLimit,
		Typing: typing.Options{
			IdleTimeout:    p.cfg.TypingIdle,
			DisplayTimeout: p.cfg.TypingDisplay,
		},
	}, p.logger)

	if p.redis != nil {
		p.initSync()
	}

	p.active = true
	p.logger.Info().Str("client", p.ID()).Str("server_url", p.cfg.ServerURL).Msg("chat client activated")
	return nil
}

// initScopes tries the Redis scope store when configured. If Redis is
// not reachable, scopes are kept in memory.
func (p *ChatClient) initScopes(ctx context.Context) {
	p.scopes = scope.NewMemoryStore()
	if p.cfg.ScopeBackend != "redis" {
		return
	}

	cfg := scope.RedisConfigFromEnv()
	rs := scope.NewRedisStore(cfg, p.logger)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		p.logger.Warn().Err(err).Msg("redis scope store unavailable, using memory")
		_ = rs.Close()
		return
	}

	p.redis = rs
	p.scopes = rs
	p.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis scope store connected")
}

// initSync starts relaying scope changes between processes. Failure is
// not fatal; other processes just won't follow this one.
func (p *ChatClient) initSync() {
	rs := scope.NewRedisSync(scope.RedisConfigFromEnv(), p.service, p.logger)
	if err := rs.Start(); err != nil {
		p.logger.Warn().Err(err).Msg("scope sync unavailable")
		_ = rs.Stop()
		return
	}
	p.relay = rs
	p.service.SetSync(rs)
}

// Deactivate closes every session, the connection and the scope store.
func (p *ChatClient) Deactivate() error {
	if p.relay != nil {
		if err := p.relay.Stop(); err != nil {
			p.logger.Error().Err(err).Msg("scope sync stop error")
		}
		p.relay = nil
	}
	if p.service != nil {
		for _, sess := range p.service.Sessions() {
			sess.Close()
		}
	}
	if p.conn != nil {
		p.conn.Disconnect()
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			p.logger.Error().Err(err).Msg("scope store close error")
		}
		p.redis = nil
	}
	p.active = false
	return nil
}

// Service exposes the chat service.
func (p *ChatClient) Service() *service.Service { return p.service }

// Connection exposes the shared connection manager.
func (p *ChatClient) Connection() *connection.Manager { return p.conn }

// Package transport dials the push server over WebSocket.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// Config holds WebSocket client settings.
type Config struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
}

// Dialer opens WebSocket connections to the push server. It satisfies
// connection.Dialer.
type Dialer struct {
	cfg    Config
	ws     *websocket.Dialer
	logger zerolog.Logger
}

// NewDialer creates a Dialer for cfg.
func NewDialer(cfg Config, logger zerolog.Logger) *Dialer {
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Dial connects as identity. The identity travels as query parameters.
func (d *Dialer) Dial(ctx context.Context, identity types.Identity) (types.Conn, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	q.Set("userId", identity.UserID)
	q.Set("userName", identity.UserName)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if d.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	conn, resp, err := d.ws.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	d.logger.Debug().Str("url", u.Redacted()).Msg("websocket established")

	c := &wsConn{conn: conn, writeTimeout: d.cfg.WriteTimeout, done: make(chan struct{})}
	if d.cfg.PingInterval > 0 {
		go c.keepalive(d.cfg.PingInterval)
	}
	return c, nil
}

// wsConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) WriteJSON(v any) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ReadJSON(v any) error { return c.conn.ReadJSON(v) }

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) keepalive(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(every)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

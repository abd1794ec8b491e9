// Package history talks to the HTTP endpoints that serve room history,
// unread counts, read receipts and active users.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// ErrUnsuccessful is returned when the server answers with success=false.
var ErrUnsuccessful = errors.New("request unsuccessful")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Config holds the endpoint settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// ActiveUser is one entry of an active-users response.
type ActiveUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ActiveUsers is the active-users response.
type ActiveUsers struct {
	Count int          `json:"count"`
	Users []ActiveUser `json:"users"`
}

type messagesResponse struct {
	Success  bool            `json:"success"`
	Messages []types.Message `json:"messages"`
	Message  string          `json:"message,omitempty"`
}

type readResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type unreadResponse struct {
	Success     bool `json:"success"`
	UnreadCount int  `json:"unreadCount"`
}

// Client calls the history endpoints.
type Client struct {
	http   *fasthttp.Client
	cfg    Config
	logger zerolog.Logger
}

// New creates a Client with its own fasthttp client.
func New(cfg Config, logger zerolog.Logger) *Client {
	return NewWithHTTPClient(cfg, &fasthttp.Client{
		Name:                "chatsync",
		MaxIdleConnDuration: time.Minute,
	}, logger)
}

// NewWithHTTPClient creates a Client on an existing fasthttp client.
func NewWithHTTPClient(cfg Config, hc *fasthttp.Client, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		http:   hc,
		cfg:    cfg,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// FetchMessages returns up to limit messages of room in server order.
func (c *Client) FetchMessages(ctx context.Context, room types.RoomIdentity, limit int) ([]types.Message, error) {
	path := roomPath("/api/messages", room)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out messagesResponse
	if err := c.do(ctx, fasthttp.MethodGet, path, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("fetch messages %s: %w: %s", room.Key(), ErrUnsuccessful, out.Message)
	}
	return out.Messages, nil
}

// MarkRead records that the user has read room. Failures are returned.
func (c *Client) MarkRead(ctx context.Context, room types.RoomIdentity) error {
	var out readResponse
	if err := c.do(ctx, fasthttp.MethodPost, roomPath("/api/messages", room)+"/read", &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("mark read %s: %w: %s", room.Key(), ErrUnsuccessful, out.Message)
	}
	return nil
}

// UnreadCount returns the unread count for room, or 0 on any failure.
func (c *Client) UnreadCount(ctx context.Context, room types.RoomIdentity) int {
	var out unreadResponse
	if err := c.do(ctx, fasthttp.MethodGet, roomPath("/api/messages", room)+"/unread-count", &out); err != nil {
		c.logger.Warn().Err(err).Str("room", room.Key()).Msg("unread count unavailable")
		return 0
	}
	if !out.Success || out.UnreadCount < 0 {
		return 0
	}
	return out.UnreadCount
}

// ActiveUsers returns the room's active users, or an empty result on any
// failure.
func (c *Client) ActiveUsers(ctx context.Context, room types.RoomIdentity) ActiveUsers {
	var out ActiveUsers
	if err := c.do(ctx, fasthttp.MethodGet, roomPath("/api/rooms", room)+"/active-users", &out); err != nil {
		c.logger.Warn().Err(err).Str("room", room.Key()).Msg("active users unavailable")
		return ActiveUsers{Users: []ActiveUser{}}
	}
	if out.Users == nil {
		out.Users = []ActiveUser{}
	}
	if out.Count < 0 {
		out.Count = 0
	}
	return out
}

func roomPath(prefix string, room types.RoomIdentity) string {
	return prefix + "/" + url.PathEscape(room.Department) + "/" + strconv.Itoa(room.Semester)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.cfg.Token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.cfg.Token)
	}

	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return &StatusError{Method: method, Path: path, Code: code, Body: string(resp.Body())}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

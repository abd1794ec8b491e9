// Package service composes the shared connection, room membership, the
// message store, presence and typing into per-surface chat sessions.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/orchestra-mcp/chatsync/src/connection"
	"github.com/orchestra-mcp/chatsync/src/history"
	"github.com/orchestra-mcp/chatsync/src/scope"
	"github.com/orchestra-mcp/chatsync/src/store"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/orchestra-mcp/chatsync/src/typing"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrEmptyID      = errors.New("message id is empty")
	ErrNoIdentity   = errors.New("user id is required")
	ErrClosed       = errors.New("session closed")
)

// History is the request/response collaborator for one room.
type History interface {
	store.Fetcher
	MarkRead(ctx context.Context, room types.RoomIdentity) error
	UnreadCount(ctx context.Context, room types.RoomIdentity) int
	ActiveUsers(ctx context.Context, room types.RoomIdentity) history.ActiveUsers
}

// Options tunes every session the Service opens.
type Options struct {
	HistoryLimit int
	Typing       typing.Options
}

// DefaultOptions returns a 50 message history page and default typing
// timers.
func DefaultOptions() Options {
	return Options{HistoryLimit: 50, Typing: typing.DefaultOptions()}
}

// Service provides chat sessions over one shared connection.
type Service struct {
	conn    *connection.Manager
	history History
	scopes  scope.Store
	opts    Options
	logger  zerolog.Logger

	mu            sync.RWMutex
	sessions      map[string]*Session
	relay         scope.Sync
	onScopeChange func(scope.Change)
}

// New creates a Service. conn is shared by every session it opens.
func New(conn *connection.Manager, h History, scopes scope.Store, opts Options, logger zerolog.Logger) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultOptions().HistoryLimit
	}
	if scopes == nil {
		scopes = scope.NewMemoryStore()
	}
	return &Service{
		conn:     conn,
		history:  h,
		scopes:   scopes,
		opts:     opts,
		logger:   logger.With().Str("component", "service").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Connection returns the shared connection manager.
func (s *Service) Connection() *connection.Manager { return s.conn }

// SelectScope validates room and records it as the user's last scope.
func (s *Service) SelectScope(ctx context.Context, userID string, room types.RoomIdentity) error {
	if userID == "" {
		return ErrNoIdentity
	}
	if err := room.Validate(); err != nil {
		return err
	}
	if err := s.scopes.Save(ctx, userID, room); err != nil {
		return fmt.Errorf("save scope: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("room", room.Key()).Msg("scope selected")
	s.publish(scope.Change{UserID: userID, Room: room})
	return nil
}

// LastScope returns the user's last selected scope, or scope.ErrNoScope.
func (s *Service) LastScope(ctx context.Context, userID string) (types.RoomIdentity, error) {
	return s.scopes.Load(ctx, userID)
}

// Reset forgets the user's last selected scope.
func (s *Service) Reset(ctx context.Context, userID string) error {
	if err := s.scopes.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear scope: %w", err)
	}
	s.publish(scope.Change{UserID: userID, Cleared: true})
	return nil
}

// SetSync relays scope changes to and from other processes.
func (s *Service) SetSync(relay scope.Sync) {
	s.mu.Lock()
	s.relay = relay
	s.mu.Unlock()
}

// OnScopeChange registers fn to run when another process changes a scope.
func (s *Service) OnScopeChange(fn func(scope.Change)) {
	s.mu.Lock()
	s.onScopeChange = fn
	s.mu.Unlock()
}

// ApplyScope records a change made by another process.
func (s *Service) ApplyScope(c scope.Change) {
	ctx := context.Background()
	var err error
	if c.Cleared {
		err = s.scopes.Clear(ctx, c.UserID)
	} else {
		err = s.scopes.Save(ctx, c.UserID, c.Room)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", c.UserID).Msg("remote scope change not stored")
		return
	}

	s.mu.RLock()
	fn := s.onScopeChange
	s.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

func (s *Service) publish(c scope.Change) {
	s.mu.RLock()
	relay := s.relay
	s.mu.RUnlock()
	if relay == nil || !relay.Available() {
		return
	}
	if err := relay.Publish(c); err != nil {
		s.logger.Warn().Err(err).Str("user_id", c.UserID).Msg("scope change not published")
	}
}

// Logout closes every session, tears down the shared connection and
// forgets the user's scope.
func (s *Service) Logout(ctx context.Context, userID string) error {
	for _, sess := range s.Sessions() {
		sess.Close()
	}
	s.conn.Disconnect()
	s.logger.Info().Str("user_id", userID).Msg("logged out")
	return s.Reset(ctx, userID)
}

// Sessions returns the open sessions ordered by id.
func (s *Service) Sessions() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// SessionInfo summarizes one open session.
type SessionInfo struct {
	ID       string `json:"id"`
	Surface  string `json:"surface"`
	Room     string `json:"room"`
	Messages int    `json:"messages"`
	Active   int    `json:"active"`
	Joined   bool   `json:"joined"`
}

// SessionInfos summarizes every open session.
func (s *Service) SessionInfos() []SessionInfo {
	sessions := s.Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	return out
}

func (s *Service) track(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// restoreMembership re-sends join_room for room after a leave_room from
// one of its sessions. One join restores the connection's membership.
func (s *Service) restoreMembership(room types.RoomIdentity) {
	for _, sess := range s.Sessions() {
		if sess.room.Key() != room.Key() || sess.isClosed() {
			continue
		}
		if sess.rooms.Rejoin(sess.user.UserID, sess.user.UserName) {
			sess.logger.Debug().Msg("membership restored after sibling closed")
			return
		}
	}
}

// Session returns the open session with id.
func (s *Service) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

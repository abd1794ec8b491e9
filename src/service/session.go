package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/chatsync/src/connection"
	"github.com/orchestra-mcp/chatsync/src/presence"
	"github.com/orchestra-mcp/chatsync/src/room"
	"github.com/orchestra-mcp/chatsync/src/store"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/orchestra-mcp/chatsync/src/typing"
	"github.com/rs/zerolog"
)

// inboundKinds is every event a session listens for.
var inboundKinds = []types.EventKind{
	types.EventReceiveMessage,
	types.EventUserJoined,
	types.EventUserLeft,
	types.EventActiveUsers,
	types.EventUserTyping,
	types.EventUserStopTyping,
	types.EventMessageDeleted,
}

// OpenOptions describes the surface opening a session. A zero Room means
// the user's last selected scope. Surface labels the consumer, e.g.
// "panel" or "page".
type OpenOptions struct {
	Room      types.RoomIdentity
	UserID    string
	UserName  string
	UserEmail string
	Surface   string
}

// Session is one consumer surface's view of one room.
type Session struct {
	id      string
	surface string
	room    types.RoomIdentity
	user    types.Identity
	email   string

	svc      *Service
	rooms    *room.Session
	store    *store.Store
	presence *presence.Tracker
	typing   *typing.Coordinator
	listener *connection.Listener
	unhook   func()
	logger   zerolog.Logger

	mu          sync.Mutex
	joinedEpoch uint64
	closed      bool
	updates     chan struct{}
}

// Open connects if needed, joins the room and loads its history. A
// history failure leaves the session open with an empty sequence.
func (s *Service) Open(ctx context.Context, opts OpenOptions) (*Session, error) {
	if opts.UserID == "" {
		return nil, ErrNoIdentity
	}
	rm := opts.Room
	if rm.IsZero() {
		last, err := s.LastScope(ctx, opts.UserID)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		rm = last
	}
	if err := rm.Validate(); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	id := uuid.New().String()
	logger := s.logger.With().Str("session_id", id).Str("room", rm.Key()).Logger()
	sess := &Session{
		id:       id,
		surface:  opts.Surface,
		room:     rm,
		user:     types.Identity{UserID: opts.UserID, UserName: opts.UserName},
		email:    opts.UserEmail,
		svc:      s,
		rooms:    room.NewSession(s.conn, logger),
		store:    store.New(s.history, logger),
		presence: presence.NewTracker(),
		logger:   logger,
		updates:  make(chan struct{}, 1),
	}
	sess.typing = typing.New(s.conn, rm, opts.UserName, s.opts.Typing, logger)
	sess.typing.OnChange(func(types.TypingState, bool) { sess.signal() })

	s.conn.Connect(opts.UserID, opts.UserName)

	active := s.history.ActiveUsers(ctx, rm)
	sess.presence.OnSnapshot(active.Count)

	sess.listener = connection.NewListener("session:"+id, sess.handle)
	reg := s.conn.Listeners()
	for _, kind := range inboundKinds {
		reg.AddListener(kind, sess.listener)
	}
	sess.unhook = s.conn.OnStateChange(func(state types.ConnectionState) {
		if state == types.StateConnected {
			sess.ensureJoined()
		}
	})
	s.track(sess)

	if s.conn.IsConnected() {
		sess.ensureJoined()
	}

	if err := sess.store.LoadSnapshot(ctx, rm, s.opts.HistoryLimit); err != nil {
		logger.Warn().Err(err).Msg("history unavailable")
	}
	sess.signal()

	logger.Info().Str("surface", opts.Surface).Str("user_id", opts.UserID).Msg("session opened")
	return sess, nil
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Surface() string          { return s.surface }
func (s *Session) Room() types.RoomIdentity { return s.room }

// Messages returns the reconciled message sequence.
func (s *Session) Messages() []types.Message { return s.store.Messages() }

// ActiveCount returns the last count the server reported.
func (s *Session) ActiveCount() int { return s.presence.Count() }

// Typing returns the remote typist, if any.
func (s *Session) Typing() (types.TypingState, bool) { return s.typing.Current() }

// Joined reports whether the room was joined on the current connection.
func (s *Session) Joined() bool {
	s.mu.Lock()
	epoch := s.joinedEpoch
	s.mu.Unlock()
	_, ok := s.rooms.Current()
	return ok && epoch != 0 && epoch == s.svc.conn.Epoch()
}

// Info summarizes the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:       s.id,
		Surface:  s.surface,
		Room:     s.room.Key(),
		Messages: s.store.Len(),
		Active:   s.presence.Count(),
		Joined:   s.Joined(),
	}
}

// Updates delivers a coalesced signal after any visible state changes.
// It is closed by Close.
func (s *Session) Updates() <-chan struct{} { return s.updates }

// SendMessage sends text to the room. The message appears in Messages
// only when the server pushes it back.
func (s *Session) SendMessage(text, replyTo string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	s.typing.StopLocal()
	err := s.svc.conn.Emit(types.EventSendMessage, types.SendMessagePayload{
		Department: s.room.Department,
		Semester:   s.room.Semester,
		Message:    text,
		UserID:     s.user.UserID,
		UserName:   s.user.UserName,
		UserEmail:  s.email,
		ReplyTo:    replyTo,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// DeleteMessage asks the server to delete id. The tombstone arrives as a
// message_deleted push.
func (s *Session) DeleteMessage(id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if id == "" {
		return ErrEmptyID
	}
	err := s.svc.conn.Emit(types.EventDeleteMessage, types.DeleteMessagePayload{
		MessageID: id,
		RoomID:    s.room.Key(),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Keystroke records local typing activity.
func (s *Session) Keystroke() { s.typing.Keystroke() }

// MarkRead marks the room read for the user.
func (s *Session) MarkRead(ctx context.Context) error {
	return s.svc.history.MarkRead(ctx, s.room)
}

// UnreadCount returns the unread count, or 0 when unavailable.
func (s *Session) UnreadCount(ctx context.Context) int {
	return s.svc.history.UnreadCount(ctx, s.room)
}

// Close leaves the room and removes exactly this session's listeners.
// Other sessions on the shared connection are unaffected: the server
// tracks membership per connection, so a sibling still open in the same
// room joins it again.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	s.mu.Unlock()

	s.typing.Close()
	s.unhook()
	reg := s.svc.conn.Listeners()
	for _, kind := range inboundKinds {
		reg.RemoveListener(kind, s.listener)
	}
	_, joined := s.rooms.Current()
	if joined {
		s.rooms.LeaveRoom(s.room, s.user.UserID, s.user.UserName)
	}
	s.svc.forget(s.id)
	if joined {
		s.svc.restoreMembership(s.room)
	}
	s.logger.Info().Msg("session closed")
}

// ensureJoined joins the room once per physical connection. After a
// reconnect the server has forgotten the membership, so it is re-sent.
func (s *Session) ensureJoined() {
	epoch := s.svc.conn.Epoch()
	s.mu.Lock()
	if s.closed || epoch == 0 || s.joinedEpoch == epoch {
		s.mu.Unlock()
		return
	}
	s.joinedEpoch = epoch
	s.mu.Unlock()

	if _, ok := s.rooms.Current(); ok {
		s.rooms.Rejoin(s.user.UserID, s.user.UserName)
	} else {
		s.rooms.JoinRoom(s.room, s.user.UserID, s.user.UserName)
	}
	s.signal()
}

func (s *Session) handle(evt types.Event) {
	if s.isClosed() {
		return
	}
	changed := true
	switch e := evt.(type) {
	case types.MessageReceived:
		if !s.inRoom(e.Message.RoomID) {
			return
		}
		changed = s.store.AppendPushed(e.Message)
	case types.MessageDeleted:
		if !s.inRoom(e.DeletedMessage.RoomID) {
			return
		}
		changed = s.store.ApplyDeletion(e.MessageID, e.DeletedMessage)
	case types.UserJoined:
		s.presence.OnJoined(e.ActiveCount)
	case types.UserLeft:
		s.presence.OnLeft(e.ActiveCount)
	case types.ActiveUsers:
		s.presence.OnSnapshot(e.Count)
	case types.UserTyping:
		if !s.inRoom(e.RoomID) {
			return
		}
		s.typing.OnRemoteTyping(e.UserName)
		changed = false
	case types.UserStopTyping:
		if !s.inRoom(e.RoomID) {
			return
		}
		s.typing.OnRemoteStop()
		changed = false
	}
	if changed {
		s.signal()
	}
}

// inRoom accepts payloads without a room key; the server only pushes to
// members.
func (s *Session) inRoom(key string) bool {
	if key == "" || key == s.room.Key() {
		return true
	}
	s.logger.Debug().Str("event_room", key).Msg("event for another room dropped")
	return false
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) signal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

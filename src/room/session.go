// Package room tracks which room a consumer surface has joined.
package room

import (
	"sync"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// Emitter sends outbound events over the shared connection.
type Emitter interface {
	Emit(kind types.EventKind, payload any) error
	IsConnected() bool
}

// Session holds at most one current room. Only Session changes it.
type Session struct {
	emitter Emitter
	logger  zerolog.Logger

	mu      sync.Mutex
	current *types.RoomIdentity
}

// NewSession creates a Session that has joined nothing.
func NewSession(e Emitter, logger zerolog.Logger) *Session {
	return &Session{
		emitter: e,
		logger:  logger.With().Str("component", "room").Logger(),
	}
}

// JoinRoom emits join_room unless room is already the current room.
// Without a connection it logs and does nothing.
func (s *Session) JoinRoom(room types.RoomIdentity, userID, userName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && *s.current == room {
		s.logger.Debug().Str("room", room.Key()).Msg("already in room")
		return
	}
	if !s.emitter.IsConnected() {
		s.logger.Warn().Str("room", room.Key()).Msg("join skipped: not connected")
		return
	}
	err := s.emitter.Emit(types.EventJoinRoom, types.JoinRoomPayload{
		Department: room.Department,
		Semester:   room.Semester,
		UserID:     userID,
		UserName:   userName,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("room", room.Key()).Msg("join failed")
		return
	}
	r := room
	s.current = &r
	s.logger.Info().Str("room", room.Key()).Str("user_id", userID).Msg("joined room")
}

// Rejoin re-emits join_room for the current room. It is needed when the
// server dropped the connection's membership: after a reconnect, or after
// another session on the same connection left this room.
func (s *Session) Rejoin(userID, userName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}
	room := *s.current
	err := s.emitter.Emit(types.EventJoinRoom, types.JoinRoomPayload{
		Department: room.Department,
		Semester:   room.Semester,
		UserID:     userID,
		UserName:   userName,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("room", room.Key()).Msg("rejoin failed")
		return false
	}
	s.logger.Info().Str("room", room.Key()).Msg("rejoined room")
	return true
}

// LeaveRoom emits leave_room for room. The current room is cleared only
// when it is the room being left.
func (s *Session) LeaveRoom(room types.RoomIdentity, userID, userName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.emitter.IsConnected() {
		s.logger.Warn().Str("room", room.Key()).Msg("leave skipped: not connected")
	} else {
		err := s.emitter.Emit(types.EventLeaveRoom, types.LeaveRoomPayload{
			RoomID:   room.Key(),
			UserID:   userID,
			UserName: userName,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("room", room.Key()).Msg("leave failed")
		}
	}

	if s.current != nil && *s.current == room {
		s.current = nil
		s.logger.Info().Str("room", room.Key()).Str("user_id", userID).Msg("left room")
	}
}

// Current returns the joined room, if any.
func (s *Session) Current() (types.RoomIdentity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return types.RoomIdentity{}, false
	}
	return *s.current, true
}

package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/chatsync/src/connection"
	"github.com/orchestra-mcp/chatsync/src/connection/conntest"
	"github.com/orchestra-mcp/chatsync/src/history"
	"github.com/orchestra-mcp/chatsync/src/service"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyHistory struct{}

func (emptyHistory) FetchMessages(context.Context, types.RoomIdentity, int) ([]types.Message, error) {
	return nil, nil
}
func (emptyHistory) MarkRead(context.Context, types.RoomIdentity) error  { return nil }
func (emptyHistory) UnreadCount(context.Context, types.RoomIdentity) int { return 0 }
func (emptyHistory) ActiveUsers(context.Context, types.RoomIdentity) history.ActiveUsers {
	return history.ActiveUsers{Users: []history.ActiveUser{}}
}

// syncBuffer guards a bytes.Buffer shared with the render goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRenderAndCommands(t *testing.T) {
	d := conntest.NewDialer()
	m := connection.New(d, connection.DefaultPolicy(), zerolog.Nop())
	t.Cleanup(m.Disconnect)
	svc := service.New(m, emptyHistory{}, nil, service.DefaultOptions(), zerolog.Nop())

	sess, err := svc.Open(context.Background(), service.OpenOptions{
		Room: types.NewRoomIdentity("CS", 3), UserID: "u1", UserName: "alice",
	})
	require.NoError(t, err)
	require.Eventually(t, sess.Joined, time.Second, 5*time.Millisecond)

	out := &syncBuffer{}
	done := make(chan struct{})
	go func() {
		render(out, sess)
		close(done)
	}()

	handleLine(context.Background(), sess, "hello there")
	handleLine(context.Background(), sess, "/delete m1")
	handleLine(context.Background(), sess, "   ")
	conn := d.Last()
	require.Eventually(t, func() bool {
		return len(conn.WrittenOf(types.EventSendMessage)) == 1 && len(conn.WrittenOf(types.EventDeleteMessage)) == 1
	}, time.Second, 5*time.Millisecond)

	conn.Push(types.EventReceiveMessage, types.Message{ID: "m1", Text: "hello there", AuthorName: "alice"})
	conn.Push(types.EventUserJoined, map[string]int{"activeCount": 2})
	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "alice: hello there  (m1)") && strings.Contains(s, "-- 2 online")
	}, time.Second, 5*time.Millisecond)

	conn.Push(types.EventMessageDeleted, map[string]string{"messageId": "m1"})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "alice: "+types.TombstoneText)
	}, time.Second, 5*time.Millisecond)

	sess.Close()
	<-done
	assert.Equal(t, 1, strings.Count(out.String(), "hello there  (m1)"))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, newLogger("nonsense").GetLevel())
	assert.Equal(t, zerolog.DebugLevel, newLogger("debug").GetLevel())
}

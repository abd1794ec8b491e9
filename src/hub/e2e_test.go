package hub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/orchestra-mcp/chatsync/src/connection"
	"github.com/orchestra-mcp/chatsync/src/history"
	"github.com/orchestra-mcp/chatsync/src/scope"
	"github.com/orchestra-mcp/chatsync/src/service"
	"github.com/orchestra-mcp/chatsync/src/transport"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/orchestra-mcp/chatsync/src/typing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hubHistory serves history straight from the hub's memory.
type hubHistory struct{ h *Hub }

func (hh hubHistory) FetchMessages(_ context.Context, room types.RoomIdentity, limit int) ([]types.Message, error) {
	return hh.h.Messages(room, limit), nil
}

func (hubHistory) MarkRead(context.Context, types.RoomIdentity) error { return nil }

func (hubHistory) UnreadCount(context.Context, types.RoomIdentity) int { return 0 }

func (hh hubHistory) ActiveUsers(_ context.Context, room types.RoomIdentity) history.ActiveUsers {
	return history.ActiveUsers{Count: hh.h.RoomCount(room.Key()), Users: []history.ActiveUser{}}
}

func serve(t *testing.T) (*Hub, string) {
	t.Helper()
	h := newTestHub(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() { _ = h.Serve(ln) }()
	return h, "ws://" + ln.Addr().String() + "/socket"
}

// newProcess builds an independent client stack, as a separate process
// would have.
func newProcess(t *testing.T, h *Hub, url string) *service.Service {
	t.Helper()
	logger := zerolog.Nop()
	d := transport.NewDialer(transport.Config{
		URL:              url,
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
	}, logger)
	m := connection.New(d, connection.Policy{
		Attempts:    3,
		Delay:       20 * time.Millisecond,
		DialTimeout: time.Second,
		SendBuffer:  64,
	}, logger)
	t.Cleanup(m.Disconnect)
	return service.New(m, hubHistory{h}, scope.NewMemoryStore(), service.Options{
		HistoryLimit: 50,
		Typing:       typing.Options{IdleTimeout: time.Second, DisplayTimeout: time.Second},
	}, logger)
}

func openAs(t *testing.T, svc *service.Service, user string) *service.Session {
	t.Helper()
	sess, err := svc.Open(context.Background(), service.OpenOptions{
		Room:     types.NewRoomIdentity("CS", 3),
		UserID:   user,
		UserName: user,
		Surface:  "page",
	})
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	require.Eventually(t, sess.Joined, waitFor, tick)
	return sess
}

func TestEndToEndRoomConversation(t *testing.T) {
	h, url := serve(t)
	alice := openAs(t, newProcess(t, h, url), "alice")
	require.Eventually(t, func() bool { return h.RoomCount("CS_3") == 1 }, waitFor, tick)

	require.NoError(t, alice.SendMessage("first", ""))
	require.Eventually(t, func() bool { return len(alice.Messages()) == 1 }, waitFor, tick)

	bob := openAs(t, newProcess(t, h, url), "bob")
	assert.Equal(t, []string{"first"}, texts(bob.Messages()))
	require.Eventually(t, func() bool { return alice.ActiveCount() == 2 && bob.ActiveCount() == 2 }, waitFor, tick)

	bob.Keystroke()
	require.Eventually(t, func() bool {
		st, ok := alice.Typing()
		return ok && st.UserName == "bob"
	}, waitFor, tick)

	require.NoError(t, bob.SendMessage("second", alice.Messages()[0].ID))
	require.Eventually(t, func() bool {
		_, typingNow := alice.Typing()
		return len(alice.Messages()) == 2 && len(bob.Messages()) == 2 && !typingNow
	}, waitFor, tick)
	assert.Equal(t, alice.Messages()[0].ID, bob.Messages()[1].ReplyToID)

	require.NoError(t, alice.DeleteMessage(alice.Messages()[0].ID))
	require.Eventually(t, func() bool { return bob.Messages()[0].IsDeleted }, waitFor, tick)
	assert.Equal(t, []string{types.TombstoneText, "second"}, texts(bob.Messages()))
	assert.Equal(t, texts(alice.Messages()), texts(bob.Messages()))

	bob.Close()
	require.Eventually(t, func() bool { return alice.ActiveCount() == 1 }, waitFor, tick)
}

func TestEndToEndClosingOneSurfaceKeepsSibling(t *testing.T) {
	h, url := serve(t)
	bob := newProcess(t, h, url)
	panel := openAs(t, bob, "bob")
	modal := openAs(t, bob, "bob")
	alice := openAs(t, newProcess(t, h, url), "alice")
	require.Eventually(t, func() bool { return h.RoomCount("CS_3") == 2 }, waitFor, tick)

	modal.Close()

	// Frames on one connection are handled in order, so once alice sees
	// this message the leave and the rejoin before it were processed.
	require.NoError(t, panel.SendMessage("still here", ""))
	require.Eventually(t, func() bool { return len(alice.Messages()) == 1 }, waitFor, tick)
	assert.Equal(t, 2, h.RoomCount("CS_3"))
	assert.True(t, panel.Joined())

	require.NoError(t, alice.SendMessage("hello panel", ""))
	require.Eventually(t, func() bool { return len(panel.Messages()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"still here", "hello panel"}, texts(panel.Messages()))
	require.Eventually(t, func() bool { return alice.ActiveCount() == 2 }, waitFor, tick)
}

func TestEndToEndRejoinAfterServerDrop(t *testing.T) {
	h, url := serve(t)
	svc := newProcess(t, h, url)
	sess := openAs(t, svc, "alice")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, waitFor, tick)
	epoch := svc.Connection().Epoch()

	for _, id := range h.ConnectedClients() {
		h.mu.RLock()
		c := h.clients[id]
		h.mu.RUnlock()
		_ = c.conn.Close()
	}

	require.Eventually(t, func() bool { return svc.Connection().Epoch() > epoch }, waitFor, tick)
	require.Eventually(t, func() bool { return h.RoomCount("CS_3") == 1 && sess.Joined() }, waitFor, tick)

	require.NoError(t, sess.SendMessage("after reconnect", ""))
	require.Eventually(t, func() bool { return len(sess.Messages()) == 1 }, waitFor, tick)
}

func texts(msgs []types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

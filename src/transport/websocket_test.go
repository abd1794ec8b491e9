package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades, records the query, and answers every frame with a
// user_joined push.
func echoServer(t *testing.T, query chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var f types.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if err := conn.WriteJSON(types.Frame{Event: "user_joined", Data: json.RawMessage(`{"activeCount":2}`)}); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialAndExchangeFrames(t *testing.T) {
	query := make(chan string, 1)
	srv := echoServer(t, query)

	d := NewDialer(Config{
		URL:              "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket",
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
		PingInterval:     50 * time.Millisecond,
	}, zerolog.Nop())

	conn, err := d.Dial(context.Background(), types.Identity{UserID: "u1", UserName: "Alice Doe"})
	require.NoError(t, err)
	defer conn.Close()

	q := <-query
	assert.Contains(t, q, "userId=u1")
	assert.Contains(t, q, "userName=Alice+Doe")

	f, err := types.NewFrame(types.EventJoinRoom, types.JoinRoomPayload{Department: "CS", Semester: 3})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(f))

	var in types.Frame
	require.NoError(t, conn.ReadJSON(&in))
	evt, err := types.DecodeEvent(in)
	require.NoError(t, err)
	assert.Equal(t, types.UserJoined{ActiveCount: 2}, evt)

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	d := NewDialer(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), HandshakeTimeout: time.Second}, zerolog.Nop())
	_, err := d.Dial(context.Background(), types.Identity{UserID: "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestDialBadURL(t *testing.T) {
	d := NewDialer(Config{URL: "://nope"}, zerolog.Nop())
	_, err := d.Dial(context.Background(), types.Identity{})
	assert.Error(t, err)
}

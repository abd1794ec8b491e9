package history

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// newTestClient serves handler on an in-memory listener.
func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	hc := &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
	return NewWithHTTPClient(Config{BaseURL: "http://history.test/", Token: "tok", Timeout: time.Second}, hc, zerolog.Nop())
}

var cs3 = types.NewRoomIdentity("CS", 3)

func TestFetchMessages(t *testing.T) {
	var gotPath, gotLimit, gotAuth string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		gotPath = string(ctx.Path())
		gotLimit = string(ctx.QueryArgs().Peek("limit"))
		gotAuth = string(ctx.Request.Header.Peek("Authorization"))
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"success":true,"messages":[
			{"id":"A","text":"first","authorId":"u1","authorName":"alice","createdAt":"2024-03-01T10:00:00Z"},
			{"id":"B","text":"second","authorId":"u2","authorName":"bob","createdAt":"2024-03-01T10:01:00Z","replyToId":"A"}]}`)
	})

	msgs, err := c.FetchMessages(context.Background(), cs3, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "A", msgs[0].ID)
	assert.Equal(t, "A", msgs[1].ReplyToID)
	assert.Equal(t, "/api/messages/CS/3", gotPath)
	assert.Equal(t, "50", gotLimit)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestFetchMessagesUnsuccessful(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"success":false,"message":"no such room"}`)
	})
	_, err := c.FetchMessages(context.Background(), cs3, 10)
	assert.ErrorIs(t, err, ErrUnsuccessful)
}

func TestMarkReadReturnsErrors(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Method()) != fasthttp.MethodPost || string(ctx.Path()) != "/api/messages/CS/3/read" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("boom")
	})

	err := c.MarkRead(context.Background(), cs3)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
	assert.Equal(t, "boom", se.Body)
}

func TestMarkRead(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"success":true}`)
	})
	assert.NoError(t, c.MarkRead(context.Background(), cs3))
}

func TestUnreadCount(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/api/messages/CS/3/unread-count", string(ctx.Path()))
		ctx.SetBodyString(`{"success":true,"unreadCount":7}`)
	})
	assert.Equal(t, 7, c.UnreadCount(context.Background(), cs3))
}

func TestReadPathsDegrade(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	})

	assert.Equal(t, 0, c.UnreadCount(context.Background(), cs3))
	au := c.ActiveUsers(context.Background(), cs3)
	assert.Equal(t, 0, au.Count)
	assert.NotNil(t, au.Users)
	assert.Empty(t, au.Users)
}

func TestActiveUsers(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/api/rooms/CS/3/active-users", string(ctx.Path()))
		ctx.SetBodyString(`{"count":2,"users":[{"userId":"u1","userName":"alice"},{"userId":"u2","userName":"bob"}]}`)
	})
	au := c.ActiveUsers(context.Background(), cs3)
	assert.Equal(t, 2, au.Count)
	assert.Equal(t, "bob", au.Users[1].UserName)
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"success":true}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.MarkRead(ctx, cs3), context.Canceled)
}

func TestRoomPathEscapesDepartment(t *testing.T) {
	assert.Equal(t, "/api/messages/Computer%20Science/2", roomPath("/api/messages", types.NewRoomIdentity("Computer Science", 2)))
}

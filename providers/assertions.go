package providers

import (
	"github.com/orchestra-mcp/chatsync/src/connection"
	"github.com/orchestra-mcp/chatsync/src/history"
	"github.com/orchestra-mcp/chatsync/src/room"
	"github.com/orchestra-mcp/chatsync/src/scope"
	"github.com/orchestra-mcp/chatsync/src/service"
	"github.com/orchestra-mcp/chatsync/src/transport"
	"github.com/orchestra-mcp/chatsync/src/typing"
)

// Compile-time interface assertions.
var (
	_ connection.Dialer    = (*transport.Dialer)(nil)
	_ connection.Transport = (*connection.Manager)(nil)
	_ room.Emitter         = (*connection.Manager)(nil)
	_ typing.Emitter       = (*connection.Manager)(nil)
	_ service.History      = (*history.Client)(nil)
	_ scope.Store          = (*scope.MemoryStore)(nil)
	_ scope.Store          = (*scope.RedisStore)(nil)
	_ scope.Sync           = (*scope.RedisSync)(nil)
	_ scope.Target         = (*service.Service)(nil)
)

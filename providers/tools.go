package providers

import (
	"fmt"

	"github.com/orchestra-mcp/chatsync/src/service"
)

// ToolDefinition describes one callable tool contributed by the client.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     func(input map[string]any) (any, error)
}

// Tools returns the tool definitions contributed by the chat client.
func (p *ChatClient) Tools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "list_chat_sessions",
			Description: "List open chat sessions with their rooms and counts",
			InputSchema: map[string]any{},
			Handler:     p.toolListSessions,
		},
		{
			Name:        "chat_send",
			Description: "Send a message in an open chat session",
			InputSchema: map[string]any{
				"session_id": map[string]any{"type": "string", "description": "Session id"},
				"text":       map[string]any{"type": "string", "description": "Message text"},
				"reply_to":   map[string]any{"type": "string", "description": "Optional message id to reply to"},
			},
			Handler: p.toolSend,
		},
		{
			Name:        "chat_messages",
			Description: "Return the reconciled messages of an open chat session",
			InputSchema: map[string]any{
				"session_id": map[string]any{"type": "string", "description": "Session id"},
			},
			Handler: p.toolMessages,
		},
	}
}

func (p *ChatClient) toolListSessions(_ map[string]any) (any, error) {
	if p.service == nil {
		return nil, fmt.Errorf("chat service not initialized")
	}
	infos := p.service.SessionInfos()
	return map[string]any{
		"sessions":  infos,
		"count":     len(infos),
		"connected": p.conn.IsConnected(),
	}, nil
}

func (p *ChatClient) toolSend(input map[string]any) (any, error) {
	sess, err := p.sessionFrom(input)
	if err != nil {
		return nil, err
	}
	text, _ := input["text"].(string)
	replyTo, _ := input["reply_to"].(string)
	if err := sess.SendMessage(text, replyTo); err != nil {
		return nil, err
	}
	return map[string]any{"sent": true, "room": sess.Room().Key()}, nil
}

func (p *ChatClient) toolMessages(input map[string]any) (any, error) {
	sess, err := p.sessionFrom(input)
	if err != nil {
		return nil, err
	}
	msgs := sess.Messages()
	return map[string]any{"messages": msgs, "count": len(msgs)}, nil
}

func (p *ChatClient) sessionFrom(input map[string]any) (*service.Session, error) {
	if p.service == nil {
		return nil, fmt.Errorf("chat service not initialized")
	}
	id, _ := input["session_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	sess, ok := p.service.Session(id)
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return sess, nil
}

package types

import "time"

// TombstoneText replaces the body of a deleted message.
const TombstoneText = "This message was deleted"

// Message is a chat message as delivered by the server.
type Message struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	AuthorEmail string    `json:"authorEmail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ReplyToID   string    `json:"replyToId,omitempty"`
	IsDeleted   bool      `json:"isDeleted"`
	// RoomID is set by servers that fan messages out across rooms.
	RoomID string `json:"roomId,omitempty"`
}

// Tombstone returns a copy of m marked as deleted. Position and reply
// threading are left untouched.
func (m Message) Tombstone() Message {
	m.IsDeleted = true
	m.Text = TombstoneText
	return m
}

// TypingState names the remote user currently shown as typing.
type TypingState struct {
	UserName string
}

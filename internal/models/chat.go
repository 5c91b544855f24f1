package models

import "time"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatIDPrefix scopes conversation history per user. Rate-limit keys and
// session ids rely on the same derivation.
const ChatIDPrefix = "chat-"

// ChatIDForUser maps a user id to its chat id.
func ChatIDForUser(userID string) string {
	return ChatIDPrefix + userID
}

// Message is one immutable turn entry of a conversation.
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chat_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Seq       int64       `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
}

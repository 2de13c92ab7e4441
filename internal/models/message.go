package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn. Messages are append-only: once
// written they are never edited or reordered.
type Message struct {
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"ts"`
}

// Conversation holds the ordered message log for one user. There is exactly
// one conversation per user id, created lazily on the first message.
type Conversation struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

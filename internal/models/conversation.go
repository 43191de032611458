package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is the partition key for all chunks and messages of one chat session.
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one append-only turn in a conversation. Meta on assistant
// messages carries the sources and tables attributed to the answer.
type Message struct {
	ID             int64        `json:"id"`
	ConversationID int64        `json:"conversation_id"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"created_at"`
	Meta           *MessageMeta `json:"meta,omitempty"`
}

// MessageMeta is the audit metadata persisted with an assistant message.
type MessageMeta struct {
	Sources []string          `json:"sources,omitempty"`
	Tables  []StructuredTable `json:"tables,omitempty"`
}

// HistoryPair is one (role, content) pair handed to the answer generator.
type HistoryPair struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

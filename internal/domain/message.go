// Package domain contains core domain types for the model manager.
package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks a message typed by the person chatting.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the model.
	RoleAssistant Role = "assistant"
)

// Known reports whether the role is one the prompt and export formats understand.
func (r Role) Known() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationRecord is a persisted snapshot of a conversation taken when a
// completion succeeded.
type ConversationRecord struct {
	ID        int64     `json:"id"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Timestamp time.Time `json:"timestamp"`
}

// WithReply returns a copy of messages with one assistant message appended.
// The input slice is never modified.
func WithReply(messages []Message, reply string) []Message {
	out := make([]Message, 0, len(messages)+1)
	out = append(out, messages...)
	return append(out, Message{Role: RoleAssistant, Content: reply})
}

package models

import (
	"strings"
	"time"
)

// NonTextSentinel is stored as the text of messages that carry only media or files.
const NonTextSentinel = "[медиа/файл]"

// Message represents a chat message captured from the messaging platform.
type Message struct {
	ID         int64     `json:"id"`      // Platform-assigned, unique within a chat
	ChatID     int64     `json:"chat_id"`
	Sender     *string   `json:"sender,omitempty"`
	Text       *string   `json:"text,omitempty"`
	Timestamp  time.Time `json:"date"`
	Summarized bool      `json:"summarized"`
}

// Key returns the message's unique (id, chat_id) pair.
func (m *Message) Key() MessageKey {
	return MessageKey{ID: m.ID, ChatID: m.ChatID}
}

// HasText reports whether the message carries text worth summarizing.
// Empty, whitespace-only and non-text sentinel messages do not.
func (m *Message) HasText() bool {
	if m.Text == nil {
		return false
	}
	t := strings.TrimSpace(*m.Text)
	return t != "" && t != NonTextSentinel
}

// MessageKey identifies a message across chats.
type MessageKey struct {
	ID     int64 `json:"id"`
	ChatID int64 `json:"chat_id"`
}

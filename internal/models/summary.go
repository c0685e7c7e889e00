package models

import (
	"strconv"
	"time"
)

// Scope selects the messages a summary run covers: one chat or all of them.
type Scope struct {
	chatID int64
	all    bool
}

// Chat returns a scope covering a single chat.
func Chat(chatID int64) Scope {
	return Scope{chatID: chatID}
}

// AllChats returns the scope covering every chat.
func AllChats() Scope {
	return Scope{all: true}
}

// IsAll reports whether the scope covers every chat.
func (s Scope) IsAll() bool { return s.all }

// ChatID returns the chat of a single-chat scope.
func (s Scope) ChatID() (int64, bool) {
	return s.chatID, !s.all
}

func (s Scope) String() string {
	if s.all {
		return "all"
	}
	return "chat:" + strconv.FormatInt(s.chatID, 10)
}

// Summary is an immutable digest of a set of messages.
type Summary struct {
	ID           int64        `json:"id"`
	Scope        Scope        `json:"-"`
	Text         string       `json:"text"`
	Covered      []MessageKey `json:"covered"`
	MessageCount int          `json:"message_count"`
	CreatedAt    time.Time    `json:"created_at"`
}

// MessageIDs returns the covered message ids in commit order.
func (s *Summary) MessageIDs() []int64 {
	ids := make([]int64, len(s.Covered))
	for i, k := range s.Covered {
		ids[i] = k.ID
	}
	return ids
}

// Stats aggregates counts shown by the dashboard and the CLI.
type Stats struct {
	TotalMessages      int64      `json:"total_messages"`
	PendingMessages    int64      `json:"pending_messages"`
	SummarizedMessages int64      `json:"summarized_messages"`
	Chats              int64      `json:"chats"`
	Summaries          int64      `json:"summaries"`
	LastSummaryAt      *time.Time `json:"last_summary_at,omitempty"`
}

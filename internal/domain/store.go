package domain

import (
	"context"
	"errors"
	"time"
)

// ErrConversationNotFound is returned by GetConversation for an unknown ID.
var ErrConversationNotFound = errors.New("conversation not found")

// Conversation is one logical chat session on one surface.
type Conversation struct {
	ID        string // session key, e.g. "telegram:12345"
	Channel   string
	ChatID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRecord is one persisted transcript entry.
type MessageRecord struct {
	ID             int64
	ConversationID string
	Role           string // "user" | "assistant"
	Content        string
	CreatedAt      time.Time
}

// TranscriptStore persists per-conversation message history. The relay
// records delivered turns here; the correction prompt builder reads the
// last few back as free-text context.
type TranscriptStore interface {
	// EnsureConversation returns the conversation for a channel/chat pair,
	// creating it on first use.
	EnsureConversation(ctx context.Context, channel, chatID string) (*Conversation, error)
	// GetConversation returns ErrConversationNotFound (possibly wrapped)
	// for an unknown ID; it never returns a nil conversation without error.
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	AddMessage(ctx context.Context, convID, role, content string) error
	// GetMessages returns the most recent messages, oldest first.
	GetMessages(ctx context.Context, convID string, limit int) ([]MessageRecord, error)
	Close() error
}

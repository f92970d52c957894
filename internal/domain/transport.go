package domain

import (
	"context"
	"errors"
)

// ErrNotModified is returned by EditText when the new content is identical
// to what the surface already shows. It is an expected outcome of edit
// coalescing, not a failure, and must never be logged at error level.
var ErrNotModified = errors.New("message content not modified")

// SendOptions tunes how a transport renders an outbound message.
type SendOptions struct {
	ParseMode      string // transport markup, e.g. "Markdown" (empty = plain)
	DisablePreview bool
}

// ChatTransport is the remote chat surface: send, edit, and delete by
// message identity. Implementations wrap a concrete chat API client.
type ChatTransport interface {
	Name() string

	// MaxTextLen is the surface's per-message text limit. Callers truncate
	// or chunk before sending.
	MaxTextLen() int

	// SendText posts a new message and returns its remote identity.
	SendText(ctx context.Context, chatID, text string, opts SendOptions) (messageID string, err error)

	// EditText replaces the content of an existing message. Returns
	// ErrNotModified (possibly wrapped) when the surface rejects the edit
	// because the content is identical.
	EditText(ctx context.Context, chatID, messageID, text string, opts SendOptions) error

	// DeleteMessage removes a message. Deleting an already-gone message is
	// an error at the transport level; callers on cleanup paths swallow it.
	DeleteMessage(ctx context.Context, chatID, messageID string) error

	// SendMedia posts media artifacts by URL with an optional caption.
	SendMedia(ctx context.Context, chatID string, urls []string, caption string) error
}

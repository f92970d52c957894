package domain

import "time"

// ToolUpdatePayload is one increment of agent output on its way to a chat
// surface: either a text fragment (progress/status/final text) or one or
// more media artifacts. Media-bearing payloads are discrete, not
// incremental, and are never coalesced.
type ToolUpdatePayload struct {
	Text      string
	MediaURL  string
	MediaURLs []string
}

// HasMedia reports whether the payload carries at least one media artifact.
func (p ToolUpdatePayload) HasMedia() bool {
	return p.MediaURL != "" || len(p.MediaURLs) > 0
}

// AllMedia returns every media URL on the payload, single-URL field first.
func (p ToolUpdatePayload) AllMedia() []string {
	if p.MediaURL == "" {
		return p.MediaURLs
	}
	urls := make([]string, 0, 1+len(p.MediaURLs))
	urls = append(urls, p.MediaURL)
	return append(urls, p.MediaURLs...)
}

// AgentEventType classifies an event emitted by the agent side of the
// pipeline.
type AgentEventType string

const (
	// EventToolUpdate is an incremental "tool is working" fragment.
	EventToolUpdate AgentEventType = "tool_update"
	// EventTurnFinal carries the finished payload for a turn.
	EventTurnFinal AgentEventType = "turn_final"
	// EventTurnAbort signals the turn ended without a deliverable payload.
	EventTurnAbort AgentEventType = "turn_abort"
)

// AgentEvent is what the agent publishes on the bus for the relay service.
type AgentEvent struct {
	Type       AgentEventType
	Channel    string // transport name, e.g. "telegram"
	ChatID     string
	SessionKey string // opaque conversation identity, e.g. "telegram:12345"
	Payload    ToolUpdatePayload
	Timestamp  time.Time
}

// InboundMessage is a user message captured from a chat surface. It is only
// used to build short-term conversation context for the correction pass.
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	Timestamp time.Time
}

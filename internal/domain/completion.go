package domain

import "context"

// PromptMessage is one turn of a completion request.
type PromptMessage struct {
	Role    string // "user" | "assistant"
	Content string
}

// CompleteOptions carries per-call credentials and limits.
type CompleteOptions struct {
	APIKey    string
	MaxTokens int
}

// ContentBlock is one element of a completion response.
type ContentBlock struct {
	Type string `json:"type"` // "text"
	Text string `json:"text,omitempty"`
}

// Completion is the structured result of a completion call.
type Completion struct {
	StopReason   string
	Content      []ContentBlock
	ErrorMessage string // non-empty when the provider reported an error body
}

// Text concatenates all text blocks of the completion.
func (c *Completion) Text() string {
	var out string
	for _, b := range c.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// CompletionClient is a generative-model API client.
type CompletionClient interface {
	Name() string
	Complete(ctx context.Context, model, system string, msgs []PromptMessage, opts CompleteOptions) (*Completion, error)
}

// ModelHandle is a resolved model: a usable client plus the credentials to
// call it with.
type ModelHandle struct {
	Provider string
	ModelID  string
	APIKey   string
	Client   CompletionClient
}

// ModelRegistry resolves a "provider/modelId" reference to a handle.
type ModelRegistry interface {
	Resolve(ref string) (*ModelHandle, error)
}

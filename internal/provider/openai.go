package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"relaybot/internal/domain"
)

// OpenAI implements domain.CompletionClient for OpenAI-compatible chat
// completion APIs. Unknown providers with an API base default to this dialect.
type OpenAI struct {
	name    string
	apiBase string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	Name    string
	APIBase string
	APIKey  string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	return &OpenAI{
		name:    cfg.Name,
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return o.name }

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
	Stream    bool         `json:"stream"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (o *OpenAI) Complete(ctx context.Context, model, system string, msgs []domain.PromptMessage, opts domain.CompleteOptions) (*domain.Completion, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = o.apiKey
	}

	body := oaiRequest{
		Model:     model,
		MaxTokens: opts.MaxTokens,
	}
	if system != "" {
		body.Messages = append(body.Messages, oaiMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		body.Messages = append(body.Messages, oaiMessage{Role: m.Role, Content: m.Content})
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	resp, err := doWithRetry(ctx, o.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)
		return req, nil
	}, o.logger)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", o.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %d: %s", o.name, resp.StatusCode, string(respBody))
	}

	var apiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices", o.name)
	}

	choice := apiResp.Choices[0]
	o.logger.Debug("completion",
		"provider", o.name,
		"model", model,
		"finishReason", choice.FinishReason,
		"promptTokens", apiResp.Usage.PromptTokens,
		"completionTokens", apiResp.Usage.CompletionTokens,
	)

	return &domain.Completion{
		StopReason: choice.FinishReason,
		Content:    []domain.ContentBlock{{Type: "text", Text: choice.Message.Content}},
	}, nil
}

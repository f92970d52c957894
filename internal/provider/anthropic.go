package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"relaybot/internal/domain"
)

const (
	anthropicAPIVersion = "2023-06-01"
	defaultMaxTokens    = 1024
	defaultHTTPTimeout  = 120 * time.Second
)

// Anthropic implements domain.CompletionClient against the Anthropic
// messages API.
type Anthropic struct {
	apiBase string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type AnthropicConfig struct {
	APIBase string
	APIKey  string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.anthropic.com"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	return &Anthropic{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []anthropicMsg `json:"messages"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content    []domain.ContentBlock `json:"content"`
	StopReason string                `json:"stop_reason"`
	Usage      anthropicUsage        `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (a *Anthropic) Complete(ctx context.Context, model, system string, msgs []domain.PromptMessage, opts domain.CompleteOptions) (*domain.Completion, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = a.apiKey
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
	}
	for _, m := range msgs {
		body.Messages = append(body.Messages, anthropicMsg{Role: m.Role, Content: m.Content})
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	resp, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", a.apiBase+"/v1/messages", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", anthropicAPIVersion)
		return req, nil
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	a.logger.Debug("anthropic completion",
		"model", model,
		"stopReason", apiResp.StopReason,
		"inputTokens", apiResp.Usage.InputTokens,
		"outputTokens", apiResp.Usage.OutputTokens,
	)

	return &domain.Completion{
		StopReason: apiResp.StopReason,
		Content:    apiResp.Content,
	}, nil
}

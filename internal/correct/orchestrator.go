package correct

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"relaybot/internal/bus"
	"relaybot/internal/domain"
	"relaybot/internal/provider"
)

// Policy decides when a correction pass runs at all.
type Policy struct {
	Enabled    bool
	Model      string // "provider/modelId"
	MinLength  int    // shortest text worth correcting
	MaxTokens  int
	RetryDelay time.Duration // fixed delay before the single rate-limit retry
}

// Request is one "maybe rewrite this payload" invocation.
type Request struct {
	SessionKey string // opaque per-conversation key, required
	Payload    domain.ToolUpdatePayload
	Context    string // short free-text conversation context
	Speaker    string
	Addressee  string
	StyleNotes string
}

// Orchestrator composes model resolution, prompt construction, the repair
// parser, and the directive codec into one end-to-end correction pass.
// Every failure path returns the original payload unchanged; the caller
// never sees an error.
type Orchestrator struct {
	policy   Policy
	registry domain.ModelRegistry
	ring     *RecentOutboundRing
	parser   *Parser
	logger   *slog.Logger

	// Events, when set, receives correction lifecycle events.
	Events *bus.EventBus

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func NewOrchestrator(policy Policy, registry domain.ModelRegistry, ring *RecentOutboundRing, logger *slog.Logger) *Orchestrator {
	if ring == nil {
		ring = NewRecentOutboundRing(defaultRingSize)
	}
	return &Orchestrator{
		policy:   policy,
		registry: registry,
		ring:     ring,
		parser:   NewParser(logger),
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// MaybeCorrect runs the correction pass if policy allows and returns the
// rewritten payload, or the original payload on any guard, resolution,
// completion, or parse failure.
func (o *Orchestrator) MaybeCorrect(ctx context.Context, req Request) domain.ToolUpdatePayload {
	text := strings.TrimSpace(req.Payload.Text)

	if !o.policy.Enabled || req.Payload.HasMedia() || req.SessionKey == "" || len(text) < o.policy.MinLength {
		return req.Payload
	}

	handle, err := o.registry.Resolve(o.policy.Model)
	if err != nil {
		o.logger.Warn("correction model unresolved, passing through", "model", o.policy.Model, "err", err)
		return req.Payload
	}

	voiceHint := VoiceHint(text)
	clean := StripVoiceDirectives(text)

	in := PromptInput{
		Text:          clean,
		VoiceHint:     voiceHint,
		Context:       req.Context,
		Speaker:       req.Speaker,
		Addressee:     req.Addressee,
		StyleNotes:    req.StyleNotes,
		RecentReplies: o.ring.Recent(req.SessionKey),
	}

	comp, err := o.complete(ctx, handle, in)
	if err != nil {
		o.logger.Warn("correction completion failed, passing through", "err", err)
		o.emit(bus.EventProviderError, req.SessionKey)
		o.emit(bus.EventCorrectionFailed, req.SessionKey)
		return req.Payload
	}

	respText := strings.TrimSpace(comp.Text())
	if respText == "" || comp.ErrorMessage != "" {
		o.logger.Warn("empty correction response, passing through", "errorMessage", comp.ErrorMessage)
		o.emit(bus.EventCorrectionFailed, req.SessionKey)
		return req.Payload
	}

	result := o.parser.Parse(respText, clean)

	// The ring records every attempted correction, changed or not, so the
	// next prompt can see what this session recently said.
	o.ring.Push(req.SessionKey, result.DisplayText)

	if result.Error != "" || result.Unchanged {
		o.logger.Debug("correction passthrough", "unchanged", result.Unchanged, "parseError", result.Error)
		o.emit(bus.EventCorrectionPassthrough, req.SessionKey)
		return req.Payload
	}

	o.logger.Info("correction applied",
		"session", req.SessionKey,
		"changes", len(result.Changes),
	)
	o.emit(bus.EventCorrectionApplied, req.SessionKey)

	out := req.Payload
	out.Text = EncodeVoice(result.DisplayText, result.VoiceText)
	return out
}

func (o *Orchestrator) emit(eventType, sessionKey string) {
	if o.Events != nil {
		o.Events.Emit(bus.Event{Type: eventType, Source: "correct", Payload: map[string]any{"session": sessionKey}})
	}
}

// complete issues the completion call, retrying exactly once after a fixed
// delay when the failure is rate-limit class.
func (o *Orchestrator) complete(ctx context.Context, handle *domain.ModelHandle, in PromptInput) (*domain.Completion, error) {
	system := BuildSystemPrompt(in)
	msgs := BuildMessages(in)
	opts := domain.CompleteOptions{APIKey: handle.APIKey, MaxTokens: o.policy.MaxTokens}

	comp, err := handle.Client.Complete(ctx, handle.ModelID, system, msgs, opts)
	if err == nil {
		return comp, nil
	}
	if !provider.IsRateLimit(err) {
		return nil, err
	}

	o.logger.Warn("correction rate limited, retrying once", "delay", o.policy.RetryDelay)
	o.sleep(o.policy.RetryDelay)
	return handle.Client.Complete(ctx, handle.ModelID, system, msgs, opts)
}

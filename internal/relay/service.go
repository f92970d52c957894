package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaybot/internal/bus"
	"relaybot/internal/channel"
	"relaybot/internal/correct"
	"relaybot/internal/domain"
)

// Service consumes agent events and drives one coalescer per conversation.
// Events for the same conversation are handled on a single goroutine, so
// tracker state never sees concurrent turns; different conversations are
// independent.
type Service struct {
	agentBus     *bus.InMemoryBus
	events       *bus.EventBus
	transports   map[string]domain.ChatTransport
	orchestrator *correct.Orchestrator
	store        domain.TranscriptStore // nil when memory is disabled
	logger       *slog.Logger

	debounce     time.Duration
	contextTurns int
	speaker      string
	addressee    string
	styleNotes   string

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

type ServiceConfig struct {
	AgentBus     *bus.InMemoryBus
	Events       *bus.EventBus
	Transports   map[string]domain.ChatTransport
	Orchestrator *correct.Orchestrator
	Store        domain.TranscriptStore
	Logger       *slog.Logger
	Debounce     time.Duration
	ContextTurns int
	Speaker      string
	Addressee    string
	StyleNotes   string
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 4
	}
	return &Service{
		agentBus:     cfg.AgentBus,
		events:       cfg.Events,
		transports:   cfg.Transports,
		orchestrator: cfg.Orchestrator,
		store:        cfg.Store,
		logger:       cfg.Logger,
		debounce:     cfg.Debounce,
		contextTurns: cfg.ContextTurns,
		speaker:      cfg.Speaker,
		addressee:    cfg.Addressee,
		styleNotes:   cfg.StyleNotes,
		workers:      make(map[string]*worker),
	}
}

// worker serializes one conversation's events.
type worker struct {
	key       string
	ch        chan domain.AgentEvent
	coalescer *Coalescer
	transport domain.ChatTransport
}

// Run dispatches events until ctx is cancelled, then drains the workers.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("relay service started", "debounce", s.debounce)

	inbound := s.agentBus.SubscribeInbound()
	events := s.agentBus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case msg, ok := <-inbound:
			if !ok {
				s.shutdown()
				return
			}
			s.recordInbound(ctx, msg)
		case evt, ok := <-events:
			if !ok {
				s.shutdown()
				return
			}
			s.dispatch(ctx, evt)
		}
	}
}

func (s *Service) shutdown() {
	s.mu.Lock()
	for _, w := range s.workers {
		close(w.ch)
	}
	s.workers = make(map[string]*worker)
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("relay service stopped")
}

func (s *Service) dispatch(ctx context.Context, evt domain.AgentEvent) {
	transport, ok := s.transports[evt.Channel]
	if !ok {
		s.logger.Warn("event for unknown channel dropped", "channel", evt.Channel)
		return
	}

	key := evt.Channel + ":" + evt.ChatID

	s.mu.Lock()
	w, exists := s.workers[key]
	if !exists {
		w = &worker{
			key:       key,
			ch:        make(chan domain.AgentEvent, 32),
			transport: transport,
			coalescer: NewCoalescer(CoalescerConfig{
				Transport: transport,
				ChatID:    evt.ChatID,
				Debounce:  s.debounce,
				Logger:    s.logger,
				Events:    s.events,
				DeliverMedia: func(mctx context.Context, urls []string, caption string) error {
					return transport.SendMedia(mctx, evt.ChatID, urls, caption)
				},
			}),
		}
		s.workers[key] = w
		s.wg.Add(1)
		go s.runWorker(ctx, w)
		s.events.Emit(bus.Event{Type: bus.EventConversationCreated, Source: "relay", Payload: map[string]any{"conversation": key}})
	}
	s.mu.Unlock()

	select {
	case w.ch <- evt:
	default:
		s.logger.Warn("conversation backlog full, event dropped", "conversation", key, "type", evt.Type)
	}
}

func (s *Service) runWorker(ctx context.Context, w *worker) {
	defer s.wg.Done()
	for evt := range w.ch {
		switch evt.Type {
		case domain.EventToolUpdate:
			w.coalescer.HandleToolUpdate(ctx, evt.Payload)
		case domain.EventTurnFinal:
			s.handleTurnFinal(ctx, w, evt)
		case domain.EventTurnAbort:
			w.coalescer.Stop()
			s.logger.Info("turn aborted, status message abandoned", "conversation", w.key)
		default:
			s.logger.Warn("unknown agent event type", "type", evt.Type)
		}
	}
}

// handleTurnFinal tears down the live status message, runs the correction
// pass, and delivers the final payload.
func (s *Service) handleTurnFinal(ctx context.Context, w *worker, evt domain.AgentEvent) {
	turnID := uuid.NewString()

	w.coalescer.Cleanup(ctx)
	s.events.Emit(bus.Event{Type: bus.EventStatusDeleted, Source: "relay", Payload: map[string]any{"conversation": w.key}})

	sessionKey := evt.SessionKey
	if sessionKey == "" {
		sessionKey = w.key
	}

	payload := s.orchestrator.MaybeCorrect(ctx, correct.Request{
		SessionKey: sessionKey,
		Payload:    evt.Payload,
		Context:    s.conversationContext(ctx, evt.Channel, evt.ChatID),
		Speaker:    s.speaker,
		Addressee:  s.addressee,
		StyleNotes: s.styleNotes,
	})

	if err := s.deliver(ctx, w, evt.ChatID, payload); err != nil {
		s.logger.Error("final delivery failed", "conversation", w.key, "turn", turnID, "err", err)
		return
	}

	s.recordOutbound(ctx, evt.Channel, evt.ChatID, payload)
	s.events.Emit(bus.Event{
		Type:   bus.EventTurnDelivered,
		Source: "relay",
		Payload: map[string]any{
			"conversation": w.key,
			"turn":         turnID,
			"corrected":    payload.Text != evt.Payload.Text,
		},
	})
	s.logger.Info("turn delivered", "conversation", w.key, "turn", turnID)
}

func (s *Service) deliver(ctx context.Context, w *worker, chatID string, payload domain.ToolUpdatePayload) error {
	if payload.HasMedia() {
		return w.transport.SendMedia(ctx, chatID, payload.AllMedia(), payload.Text)
	}

	display := correct.StripVoiceDirectives(payload.Text)
	if strings.TrimSpace(display) == "" {
		return nil
	}

	for _, chunk := range channel.SplitMessage(display, w.transport.MaxTextLen()) {
		if _, err := w.transport.SendText(ctx, chatID, chunk, domain.SendOptions{}); err != nil {
			return fmt.Errorf("send chunk: %w", err)
		}
	}
	return nil
}

func (s *Service) recordInbound(ctx context.Context, msg domain.InboundMessage) {
	if s.store == nil {
		return
	}
	conv, err := s.store.EnsureConversation(ctx, msg.Channel, msg.ChatID)
	if err != nil {
		s.logger.Warn("transcript conversation lookup failed", "err", err)
		return
	}
	if err := s.store.AddMessage(ctx, conv.ID, "user", msg.Content); err != nil {
		s.logger.Warn("transcript append failed", "err", err)
	}
}

func (s *Service) recordOutbound(ctx context.Context, channelName, chatID string, payload domain.ToolUpdatePayload) {
	if s.store == nil || payload.Text == "" {
		return
	}
	conv, err := s.store.EnsureConversation(ctx, channelName, chatID)
	if err != nil {
		s.logger.Warn("transcript conversation lookup failed", "err", err)
		return
	}
	display := correct.StripVoiceDirectives(payload.Text)
	if err := s.store.AddMessage(ctx, conv.ID, "assistant", display); err != nil {
		s.logger.Warn("transcript append failed", "err", err)
	}
}

// conversationContext renders the last few transcript turns as free text
// for the correction prompt.
func (s *Service) conversationContext(ctx context.Context, channelName, chatID string) string {
	if s.store == nil {
		return ""
	}
	conv, err := s.store.EnsureConversation(ctx, channelName, chatID)
	if err != nil {
		return ""
	}
	msgs, err := s.store.GetMessages(ctx, conv.ID, s.contextTurns*2)
	if err != nil || len(msgs) == 0 {
		return ""
	}

	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

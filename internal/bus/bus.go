package bus

import (
	"log/slog"
	"sync"
	"time"

	"relaybot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based bus carrying agent events and captured
// inbound user messages between the pipeline's components.
type InMemoryBus struct {
	events  chan domain.AgentEvent
	inbound chan domain.InboundMessage
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		events:  make(chan domain.AgentEvent, bufferSize),
		inbound: make(chan domain.InboundMessage, bufferSize),
		logger:  logger,
	}
}

// Publish delivers an agent event to the relay service.
// Blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(evt domain.AgentEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	select {
	case b.events <- evt:
	default:
		// Bus full - wait with timeout instead of dropping
		b.logger.Warn("agent event bus full, waiting...", "channel", evt.Channel, "type", evt.Type)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.events <- evt:
			b.logger.Info("event delivered after wait", "channel", evt.Channel)
		case <-timer.C:
			b.logger.Error("event dropped: bus full for 10s",
				"channel", evt.Channel,
				"type", evt.Type,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.AgentEvent {
	return b.events
}

// PublishInbound records a user message for conversation-context purposes.
// Inbound capture is best-effort: a full buffer drops the message.
func (b *InMemoryBus) PublishInbound(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound buffer full, dropping context message",
			"channel", msg.Channel, "chat", msg.ChatID)
	}
}

func (b *InMemoryBus) SubscribeInbound() <-chan domain.InboundMessage {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.events)
		close(b.inbound)
	}
}

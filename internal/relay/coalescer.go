package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"relaybot/internal/bus"
	"relaybot/internal/channel"
	"relaybot/internal/domain"
)

// DefaultDebounce is the quiet period before a buffered edit flushes.
const DefaultDebounce = 2000 * time.Millisecond

// MediaDeliverFunc receives media payloads directly; media artifacts are
// discrete, never coalesced.
type MediaDeliverFunc func(ctx context.Context, urls []string, caption string) error

// Coalescer owns the lifecycle of one live status message per conversation
// turn. It buffers a burst of progress-text fragments into at most one
// visible message that is created once and then edited after each quiet
// period.
//
// The debounce timer fires on its own goroutine, so the state is guarded by
// a mutex rather than a caller-serialization contract.
type Coalescer struct {
	transport    domain.ChatTransport
	chatID       string
	sendOpts     domain.SendOptions
	deliverMedia MediaDeliverFunc
	debounce     time.Duration
	logger       *slog.Logger
	events       *bus.EventBus // optional

	// schedule is swapped out in tests. It runs fn after d and returns a
	// cancel function.
	schedule func(d time.Duration, fn func()) func()

	mu              sync.Mutex
	activeMessageID string
	pendingText     string
	lastSentText    string
	cancelDebounce  func()
	stopped         bool
}

type CoalescerConfig struct {
	Transport    domain.ChatTransport
	ChatID       string
	SendOpts     domain.SendOptions
	DeliverMedia MediaDeliverFunc
	Debounce     time.Duration
	Logger       *slog.Logger
	Events       *bus.EventBus
}

func NewCoalescer(cfg CoalescerConfig) *Coalescer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Coalescer{
		transport:    cfg.Transport,
		chatID:       cfg.ChatID,
		sendOpts:     cfg.SendOpts,
		deliverMedia: cfg.DeliverMedia,
		debounce:     cfg.Debounce,
		logger:       cfg.Logger,
		events:       cfg.Events,
		schedule: func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		},
	}
}

// HandleToolUpdate processes one progress payload. Media payloads go
// straight to the delivery function. The first text creates the status
// message synchronously; later texts are buffered behind a restarting
// debounce window so only genuine inactivity triggers an edit.
func (c *Coalescer) HandleToolUpdate(ctx context.Context, payload domain.ToolUpdatePayload) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	if payload.HasMedia() {
		c.mu.Unlock()
		if c.deliverMedia != nil {
			if err := c.deliverMedia(ctx, payload.AllMedia(), payload.Text); err != nil {
				c.logger.Warn("media delivery failed", "chat", c.chatID, "err", err)
			}
		}
		return
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		c.mu.Unlock()
		return
	}

	if c.activeMessageID == "" {
		// First fragment: the user must see something without delay.
		c.mu.Unlock()
		c.createStatusMessage(ctx, text)
		return
	}

	c.pendingText = text
	if c.cancelDebounce != nil {
		c.cancelDebounce()
	}
	c.cancelDebounce = c.schedule(c.debounce, func() {
		c.flushEdit(context.Background())
	})
	c.mu.Unlock()
}

func (c *Coalescer) createStatusMessage(ctx context.Context, text string) {
	text = c.truncate(text)
	msgID, err := c.transport.SendText(ctx, c.chatID, text, c.sendOpts)
	if err != nil {
		c.logger.Warn("status message send failed", "chat", c.chatID, "err", err)
		return
	}

	c.mu.Lock()
	c.activeMessageID = msgID
	c.lastSentText = text
	c.mu.Unlock()

	c.emit(bus.EventStatusCreated)
}

// flushEdit fires when the debounce window elapses. Duplicate content is
// suppressed without a network call. Edit failures are swallowed; the
// expected "not modified" rejection never reaches error-level logs.
func (c *Coalescer) flushEdit(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushEditLocked(ctx)
}

func (c *Coalescer) flushEditLocked(ctx context.Context) {
	if c.stopped || c.activeMessageID == "" || c.pendingText == "" {
		return
	}

	text := c.pendingText
	c.pendingText = ""

	if text == c.lastSentText {
		c.logger.Debug("edit suppressed, content unchanged", "chat", c.chatID)
		c.emit(bus.EventEditSuppressed)
		return
	}

	text = c.truncate(text)
	if err := c.transport.EditText(ctx, c.chatID, c.activeMessageID, text, c.sendOpts); err != nil {
		if errors.Is(err, domain.ErrNotModified) {
			c.logger.Debug("edit skipped by transport, content identical", "chat", c.chatID)
			c.emit(bus.EventEditSuppressed)
		} else {
			c.logger.Warn("status edit failed", "chat", c.chatID, "err", err)
		}
		return
	}
	c.lastSentText = text
	c.emit(bus.EventEditFlushed)
}

// Cleanup flushes any pending text, deletes the status message, and resets
// the instance for reuse. Every remote call is best effort; a message that
// is already gone is not an error worth surfacing.
func (c *Coalescer) Cleanup(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelDebounce != nil {
		c.cancelDebounce()
		c.cancelDebounce = nil
	}

	// Final flush resolves before the delete so the two calls cannot race
	// against the same message.
	if c.pendingText != "" && c.pendingText != c.lastSentText && c.activeMessageID != "" {
		c.flushEditLocked(ctx)
	}

	if c.activeMessageID != "" {
		if err := c.transport.DeleteMessage(ctx, c.chatID, c.activeMessageID); err != nil {
			c.logger.Debug("status delete failed", "chat", c.chatID, "err", err)
		}
	}

	c.activeMessageID = ""
	c.pendingText = ""
	c.lastSentText = ""
	c.stopped = false
}

// Stop cancels any pending flush and abandons the status message in place.
// No network I/O happens; work already in flight is not cancelled. Further
// updates are ignored until Cleanup resets the instance.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelDebounce != nil {
		c.cancelDebounce()
		c.cancelDebounce = nil
	}
	c.stopped = true
}

func (c *Coalescer) emit(eventType string) {
	if c.events != nil {
		c.events.Emit(bus.Event{Type: eventType, Source: "coalescer", Payload: map[string]any{"chat": c.chatID}})
	}
}

func (c *Coalescer) truncate(text string) string {
	return channel.Truncate(text, c.transport.MaxTextLen())
}

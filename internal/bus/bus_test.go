package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	b.Publish(domain.AgentEvent{
		Type:    domain.EventToolUpdate,
		Channel: "telegram",
		ChatID:  "123",
		Payload: domain.ToolUpdatePayload{Text: "Step 1..."},
	})

	select {
	case evt := <-b.Subscribe():
		if evt.Type != domain.EventToolUpdate {
			t.Errorf("expected tool_update, got %s", evt.Type)
		}
		if evt.Payload.Text != "Step 1..." {
			t.Errorf("expected payload text, got %q", evt.Payload.Text)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp should be auto-set")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestInMemoryBus_PublishAfterClose(t *testing.T) {
	b := New(10, testLogger())
	b.Close()

	// Must not panic.
	b.Publish(domain.AgentEvent{Type: domain.EventTurnFinal, Channel: "telegram"})
	b.PublishInbound(domain.InboundMessage{Channel: "telegram", ChatID: "1"})
}

func TestInMemoryBus_InboundBestEffort(t *testing.T) {
	b := New(1, testLogger())
	defer b.Close()

	b.PublishInbound(domain.InboundMessage{Channel: "telegram", ChatID: "1", Content: "first"})
	// Buffer full: dropped, must not block.
	b.PublishInbound(domain.InboundMessage{Channel: "telegram", ChatID: "1", Content: "second"})

	select {
	case msg := <-b.SubscribeInbound():
		if msg.Content != "first" {
			t.Errorf("expected first message, got %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestInMemoryBus_CloseIdempotent(t *testing.T) {
	b := New(10, testLogger())
	b.Close()
	b.Close()
}

package relay

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeTransport records calls; editErr lets tests inject edit failures.
type fakeTransport struct {
	mu       sync.Mutex
	sends    []string
	edits    []string
	deletes  []string
	editErr  error
	maxLen   int
	nextID   int
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) MaxTextLen() int {
	if f.maxLen > 0 {
		return f.maxLen
	}
	return 4000
}

func (f *fakeTransport) SendText(ctx context.Context, chatID, text string, opts domain.SendOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	f.nextID++
	return "msg-1", nil
}

func (f *fakeTransport) EditText(ctx context.Context, chatID, messageID, text string, opts domain.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, messageID)
	return nil
}

func (f *fakeTransport) SendMedia(ctx context.Context, chatID string, urls []string, caption string) error {
	return nil
}

// manualScheduler collects scheduled callbacks so tests control time.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
	cancels int
}

func (m *manualScheduler) schedule(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.pending)
	m.pending = append(m.pending, fn)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.pending[idx] != nil {
			m.pending[idx] = nil
			m.cancels++
		}
	}
}

// fire runs the most recent uncancelled callback, as an elapsed timer would.
func (m *manualScheduler) fire() {
	m.mu.Lock()
	var fn func()
	for i := len(m.pending) - 1; i >= 0; i-- {
		if m.pending[i] != nil {
			fn = m.pending[i]
			m.pending[i] = nil
			break
		}
	}
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func newTestCoalescer(ft *fakeTransport) (*Coalescer, *manualScheduler) {
	c := NewCoalescer(CoalescerConfig{
		Transport: ft,
		ChatID:    "42",
		Debounce:  DefaultDebounce,
		Logger:    testLogger(),
	})
	ms := &manualScheduler{}
	c.schedule = ms.schedule
	return c, ms
}

func update(text string) domain.ToolUpdatePayload {
	return domain.ToolUpdatePayload{Text: text}
}

func TestCoalescer_FirstUpdateSendsImmediately(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestCoalescer(ft)

	c.HandleToolUpdate(context.Background(), update("Step 1..."))

	if len(ft.sends) != 1 || ft.sends[0] != "Step 1..." {
		t.Errorf("expected immediate send, got %v", ft.sends)
	}
	if len(ft.edits) != 0 {
		t.Error("first update must not edit")
	}
}

func TestCoalescer_BurstProducesOneEdit(t *testing.T) {
	ft := &fakeTransport{}
	c, ms := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update("Step 1..."))
	c.HandleToolUpdate(ctx, update("Step 2..."))
	c.HandleToolUpdate(ctx, update("Step 3..."))
	c.HandleToolUpdate(ctx, update("Step 4..."))
	ms.fire()

	if len(ft.edits) != 1 || ft.edits[0] != "Step 4..." {
		t.Errorf("expected one edit with the last text, got %v", ft.edits)
	}
	if ms.cancels != 2 {
		t.Errorf("each new fragment should cancel the prior window, got %d cancels", ms.cancels)
	}
}

func TestCoalescer_StepScenario(t *testing.T) {
	ft := &fakeTransport{}
	c, ms := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update("Step 1..."))
	c.HandleToolUpdate(ctx, update("Step 2..."))
	ms.fire()

	if len(ft.sends) != 1 {
		t.Errorf("expected one send, got %d", len(ft.sends))
	}
	if len(ft.edits) != 1 || ft.edits[0] != "Step 2..." {
		t.Errorf("expected exactly one edit with %q, got %v", "Step 2...", ft.edits)
	}
}

func TestCoalescer_DuplicateSuppressed(t *testing.T) {
	ft := &fakeTransport{}
	c, ms := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update("same"))
	c.HandleToolUpdate(ctx, update("same"))
	ms.fire()

	if len(ft.edits) != 0 {
		t.Errorf("identical content must not produce an edit, got %v", ft.edits)
	}
}

func TestCoalescer_EmptyTextIgnored(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestCoalescer(ft)

	c.HandleToolUpdate(context.Background(), update("   "))
	if len(ft.sends) != 0 {
		t.Error("whitespace update must be a no-op")
	}
}

func TestCoalescer_MediaBypassesCoalescing(t *testing.T) {
	ft := &fakeTransport{}
	var delivered []string
	c := NewCoalescer(CoalescerConfig{
		Transport: ft,
		ChatID:    "42",
		Logger:    testLogger(),
		DeliverMedia: func(ctx context.Context, urls []string, caption string) error {
			delivered = append(delivered, urls...)
			return nil
		},
	})

	c.HandleToolUpdate(context.Background(), domain.ToolUpdatePayload{MediaURL: "http://x/a.png"})

	if len(delivered) != 1 || delivered[0] != "http://x/a.png" {
		t.Errorf("expected media forwarded, got %v", delivered)
	}
	if len(ft.sends) != 0 {
		t.Error("media must never hit the text-send path")
	}
}

func TestCoalescer_CleanupWithoutUpdates(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestCoalescer(ft)

	c.Cleanup(context.Background())

	if len(ft.edits) != 0 || len(ft.deletes) != 0 {
		t.Error("cleanup of an idle tracker must not touch the network")
	}
}

func TestCoalescer_CleanupAfterSingleUpdate(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update("only one"))
	c.Cleanup(ctx)

	if len(ft.edits) != 0 {
		t.Errorf("no pending text, no edit expected, got %v", ft.edits)
	}
	if len(ft.deletes) != 1 {
		t.Errorf("expected exactly one delete, got %d", len(ft.deletes))
	}
}

func TestCoalescer_CleanupFlushesPending(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update("first"))
	c.HandleToolUpdate(ctx, update("final"))
	c.Cleanup(ctx)

	if len(ft.edits) != 1 || ft.edits[0] != "final" {
		t.Errorf("cleanup must flush pending text, got %v", ft.edits)
	}
	if len(ft.deletes) != 1 {
		t.Errorf("expected delete after flush, got %d", len(ft.deletes))
	}
}

func TestCoalescer_CleanupSwallowsEditFailure(t *testing.T) {
	ft := &fakeTransport{editErr: errors.New("gone")}
	c, _ := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update("first"))
	c.HandleToolUpdate(ctx, update("final"))
	c.Cleanup(ctx)

	// The failed flush must not prevent the delete.
	if len(ft.deletes) != 1 {
		t.Errorf("expected delete despite edit failure, got %d", len(ft.deletes))
	}
}

func TestCoalescer_StopPreventsFlush(t *testing.T) {
	ft := &fakeTransport{}
	c, ms := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update("first"))
	c.HandleToolUpdate(ctx, update("second"))
	c.Stop()
	ms.fire()

	if len(ft.edits) != 0 {
		t.Errorf("stop must prevent future flushes, got %v", ft.edits)
	}
	if len(ft.deletes) != 0 {
		t.Error("stop performs no network I/O")
	}
}

func TestCoalescer_StoppedIgnoresUpdates(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestCoalescer(ft)

	c.Stop()
	c.HandleToolUpdate(context.Background(), update("late"))

	if len(ft.sends) != 0 {
		t.Error("updates after stop must be no-ops")
	}
}

func TestCoalescer_NotModifiedSwallowed(t *testing.T) {
	ft := &fakeTransport{editErr: domain.ErrNotModified}
	c, ms := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update("first"))
	c.HandleToolUpdate(ctx, update("second"))
	ms.fire()
	// Nothing to assert beyond "no panic, no propagation"; the error is
	// suppressed inside the flush.
}

func TestCoalescer_TruncatesToTransportLimit(t *testing.T) {
	ft := &fakeTransport{maxLen: 10}
	c, ms := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update(strings.Repeat("a", 50)))
	if len(ft.sends[0]) != 10 {
		t.Errorf("send not truncated: %d chars", len(ft.sends[0]))
	}

	c.HandleToolUpdate(ctx, update(strings.Repeat("b", 50)))
	ms.fire()
	if len(ft.edits) != 1 || len(ft.edits[0]) != 10 {
		t.Errorf("edit not truncated: %v", ft.edits)
	}
}

func TestCoalescer_TruncationKeepsRunesIntact(t *testing.T) {
	ft := &fakeTransport{maxLen: 10}
	c, _ := newTestCoalescer(ft)

	// 3-byte runes; a byte cut at 10 would land mid-rune.
	c.HandleToolUpdate(context.Background(), update(strings.Repeat("日", 8)))

	if len(ft.sends) != 1 {
		t.Fatalf("expected one send, got %d", len(ft.sends))
	}
	if !utf8.ValidString(ft.sends[0]) {
		t.Errorf("truncated send contains a torn rune: %q", ft.sends[0])
	}
	if ft.sends[0] != strings.Repeat("日", 3) {
		t.Errorf("expected 3 whole runes, got %q", ft.sends[0])
	}
}

func TestCoalescer_ReusableAfterCleanup(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestCoalescer(ft)
	ctx := context.Background()

	c.HandleToolUpdate(ctx, update("turn one"))
	c.Cleanup(ctx)

	c.HandleToolUpdate(ctx, update("turn two"))
	if len(ft.sends) != 2 {
		t.Errorf("expected a fresh send after cleanup, got %d", len(ft.sends))
	}
}

func TestCoalescer_CleanupResetsStopped(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestCoalescer(ft)
	ctx := context.Background()

	c.Stop()
	c.Cleanup(ctx)
	c.HandleToolUpdate(ctx, update("after reset"))

	if len(ft.sends) != 1 {
		t.Error("cleanup must reset the stopped flag for reuse")
	}
}

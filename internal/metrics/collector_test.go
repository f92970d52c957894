package metrics

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"relaybot/internal/bus"
)

func TestCounterAndGauge(t *testing.T) {
	c := NewMetricsCollector()

	ctr := c.Counter("test_total", "test counter", "")
	ctr.Inc()
	ctr.Add(2)
	if ctr.Value() != 3 {
		t.Errorf("expected 3, got %d", ctr.Value())
	}

	g := c.Gauge("test_gauge", "test gauge", "")
	g.Set(5)
	g.Inc()
	g.Dec()
	if g.Value() != 5 {
		t.Errorf("expected 5, got %d", g.Value())
	}
}

func TestRegistrationDeduplicates(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("dup_total", "x", "")
	b := c.Counter("dup_total", "x", "")
	if a != b {
		t.Error("same name must return the same counter")
	}
}

func TestHistogramBuckets(t *testing.T) {
	c := NewMetricsCollector()
	h := c.Histogram("lat_seconds", "latency", "", []float64{1, 5})

	h.Observe(0.5)
	h.Observe(3)
	h.Observe(10)

	if h.count != 3 {
		t.Errorf("expected 3 observations, got %d", h.count)
	}
	if h.buckets[0].count != 1 || h.buckets[1].count != 2 {
		t.Errorf("unexpected bucket counts: %+v", h.buckets)
	}
}

func TestHandlerRendersPrometheusText(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("relay_test_total", "test", "").Inc()

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "relaybot_uptime_seconds") {
		t.Error("missing uptime metric")
	}
	if !strings.Contains(body, "relay_test_total 1") {
		t.Errorf("missing counter line, body:\n%s", body)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("unexpected content type: %s", got)
	}
}

func TestBindEventBus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	events := bus.NewEventBus(logger)
	BindEventBus(events)

	before := TurnsDeliveredTotal.Value()
	corrBefore := CorrectionsTotal.Value()

	events.Emit(bus.Event{Type: bus.EventTurnDelivered, Payload: map[string]any{"corrected": true}})

	if TurnsDeliveredTotal.Value() != before+1 {
		t.Error("turn delivery not counted")
	}
	if CorrectionsTotal.Value() != corrBefore+1 {
		t.Error("correction not counted")
	}
}

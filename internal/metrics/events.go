package metrics

import "relaybot/internal/bus"

// BindEventBus subscribes the predefined counters to pipeline lifecycle
// events so components emit events without importing this package.
func BindEventBus(events *bus.EventBus) {
	events.On(bus.EventEditFlushed, func(bus.Event) { EditsTotal.Inc() })
	events.On(bus.EventEditSuppressed, func(bus.Event) { EditsSuppressedTotal.Inc() })
	events.On(bus.EventTurnDelivered, func(e bus.Event) {
		TurnsDeliveredTotal.Inc()
		if corrected, ok := e.Payload["corrected"].(bool); ok {
			if corrected {
				CorrectionsTotal.Inc()
			} else {
				CorrectionPassthrough.Inc()
			}
		}
	})
	events.On(bus.EventProviderError, func(bus.Event) { ProviderErrorsTotal.Inc() })
	events.On(bus.EventConversationCreated, func(bus.Event) { ActiveConversations.Inc() })
}

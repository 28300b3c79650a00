package observability

import (
	"cdpvault/core/events"
)

// Emit counts a committed engine event, so CDPMetrics can sit on the event
// fan-out next to the stream hub and the indexer.
func (m *CDPMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.Barked:
		m.liquidations.WithLabelValues(e.Ilk).Inc()
	case events.AuctionTaken:
		m.takes.WithLabelValues(e.Ilk).Inc()
	}
}

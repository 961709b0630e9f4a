package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of open websocket connections",
		},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_events_total",
			Help: "Inbound live events handled, by event name",
		},
		[]string{"event"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_events_dropped_total",
			Help: "Live events dropped, by reason",
		},
		[]string{"reason"},
	)
)

// known keeps the event label bounded
var known = map[string]bool{
	"identify": true, "query-status": true, "send": true,
	"typing-start": true, "typing-stop": true, "read-receipt": true,
	"reaction": true, "delete": true,
}

func eventLabel(event string) string {
	if known[event] {
		return event
	}
	return "other"
}

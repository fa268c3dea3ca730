package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "studyhub",
		Subsystem: "realtime",
		Name:      "sessions_active",
		Help:      "Live socket sessions attached to the router",
	})

	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "studyhub",
		Subsystem: "realtime",
		Name:      "rooms_active",
		Help:      "Rooms with at least one session",
	})

	// framesSent counts frames queued to sessions.
	// Labels: event
	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyhub",
		Subsystem: "realtime",
		Name:      "frames_sent_total",
		Help:      "Outbound frames queued to sessions, by event",
	}, []string{"event"})

	// slowDrops counts sessions dropped because their send buffer was full.
	slowDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhub",
		Subsystem: "realtime",
		Name:      "slow_session_drops_total",
		Help:      "Sessions closed because their outbound buffer was full",
	})

	joinsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhub",
		Subsystem: "realtime",
		Name:      "room_joins_denied_total",
		Help:      "Room joins refused by the room gate",
	})

	// inboundErrors counts inbound frames answered with messageError.
	// Labels: reason (malformed, invalid, unknown_event, broadcast)
	inboundErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyhub",
		Subsystem: "realtime",
		Name:      "inbound_errors_total",
		Help:      "Inbound frames rejected with messageError",
	}, []string{"reason"})

	presenceDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhub",
		Subsystem: "realtime",
		Name:      "presence_updates_dropped_total",
		Help:      "Presence mirror updates dropped because the queue was full",
	})
)

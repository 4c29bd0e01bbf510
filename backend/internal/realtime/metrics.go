package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_sessions_active",
		Help: "Number of open websocket sessions",
	})

	activeChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_channels_active",
		Help: "Number of board channels with at least one local session",
	})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_published_total",
		Help: "Events published to board channels",
	}, []string{"type"})

	deliveriesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_deliveries_dropped_total",
		Help: "Messages not delivered to a session",
	}, []string{"reason"})

	publishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_publish_failures_total",
		Help: "Publishes rejected by the broker",
	})
)

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"watchtower/pkg/monitoring"
)

// Metrics holds the service-level Prometheus collectors for the event
// pipeline and the WebSocket hub.
type Metrics struct {
	EventsPublished    *prometheus.CounterVec
	PublishDuration    *prometheus.HistogramVec
	SubscriberFailures *prometheus.CounterVec
	CamerasResolved    *prometheus.HistogramVec
	HubConnections     *prometheus.GaugeVec
	HubMessages        *prometheus.CounterVec
}

// New registers the pipeline metrics on the shared collector.
func New(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		EventsPublished: mc.NewCounter(
			"events_published_total",
			"Events published to the broker by type and outcome",
			[]string{"type", "outcome"},
		),
		PublishDuration: mc.NewHistogram(
			"publish_duration_seconds",
			"End-to-end publish pipeline duration",
			[]string{"type"},
			[]float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		),
		SubscriberFailures: mc.NewCounter(
			"subscriber_failures_total",
			"Subscriber callbacks that panicked during fan-out",
			[]string{"type"},
		),
		CamerasResolved: mc.NewHistogram(
			"cameras_resolved",
			"Cameras activated per event",
			[]string{"type"},
			[]float64{0, 1, 2, 3, 5, 8, 13},
		),
		HubConnections: mc.NewGauge(
			"hub_connections",
			"Active WebSocket connections",
			[]string{"scope"},
		),
		HubMessages: mc.NewCounter(
			"hub_messages_total",
			"Envelopes handled by the WebSocket hub",
			[]string{"channel", "outcome"},
		),
	}
}

// OnPublish records one publish outcome; wired into the broker hooks.
func (m *Metrics) OnPublish(msgType string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.EventsPublished.WithLabelValues(msgType, outcome).Inc()
	m.PublishDuration.WithLabelValues(msgType).Observe(duration.Seconds())
}

// OnResolve records how many cameras an event activated.
func (m *Metrics) OnResolve(msgType string, cameras int) {
	m.CamerasResolved.WithLabelValues(msgType).Observe(float64(cameras))
}

// OnSubscriberFailure records a panicking subscriber callback.
func (m *Metrics) OnSubscriberFailure(msgType string) {
	m.SubscriberFailures.WithLabelValues(msgType).Inc()
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_received_total",
			Help: "Total number of notification events consumed from the broker",
		},
		[]string{"event_type"},
	)

	eventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Total number of events that completed a pipeline stage",
		},
		[]string{"event_type"},
	)

	eventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_failed_total",
			Help: "Total number of events rejected by a pipeline stage",
		},
		[]string{"event_type", "reason"},
	)

	eventsDuplicateTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_duplicate_total",
			Help: "Total number of events dropped by the dedup window",
		},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Total number of delivery attempts that wrote an audit row",
		},
		[]string{"channel", "status"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_seconds",
			Help:    "Transport call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	// Owned by the realtime fan-out layer; registered here so every stage
	// exposes the full platform metric set.
	activeWebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_websocket_connections",
			Help: "Number of websocket clients attached to the fan-out layer",
		},
	)
)

// RecordEventReceived records a message pulled from the broker.
func RecordEventReceived(eventType string) {
	eventsReceivedTotal.WithLabelValues(eventType).Inc()
}

// RecordEventProcessed records a message a stage completed.
func RecordEventProcessed(eventType string) {
	eventsProcessedTotal.WithLabelValues(eventType).Inc()
}

// RecordEventFailed records a message a stage rejected.
func RecordEventFailed(eventType, reason string) {
	eventsFailedTotal.WithLabelValues(eventType, reason).Inc()
}

// RecordDuplicate records a dedup hit.
func RecordDuplicate() {
	eventsDuplicateTotal.Inc()
}

// RecordDelivery records a written delivery row.
func RecordDelivery(channel, status string) {
	deliveriesTotal.WithLabelValues(channel, status).Inc()
}

// ObserveDeliveryDuration records the transport call duration.
func ObserveDeliveryDuration(channel string, d time.Duration) {
	deliveryDuration.WithLabelValues(channel).Observe(d.Seconds())
}

// SetActiveWebsocketConnections sets the fan-out connection gauge.
func SetActiveWebsocketConnections(n int) {
	activeWebsocketConnections.Set(float64(n))
}

// Handler returns the Prometheus text exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

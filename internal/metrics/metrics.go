// Package metrics provides Prometheus instrumentation for the Quilt
// client. It exposes gauges for room and queue sizes, counters for
// event throughput, and histograms for homeserver request latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RoomsJoined tracks the current number of joined rooms.
	RoomsJoined = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quilt_rooms_joined",
		Help: "Current number of joined rooms",
	})

	// QueuedEvents tracks the total number of outbound events currently
	// queued across all rooms.
	QueuedEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quilt_queued_events",
		Help: "Outbound events currently queued across all rooms",
	})

	// EventsSentTotal counts outbound event send attempts, labeled by
	// outcome: "sent", "error", or "bad_response".
	EventsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quilt_events_sent_total",
		Help: "Total outbound event send attempts by outcome",
	}, []string{"result"})

	// MessagesReceived counts timeline messages delivered to the UI sink.
	MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quilt_messages_received_total",
		Help: "Timeline messages delivered to the UI sink",
	})

	// SendLatency records event send round-trip latency in seconds.
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "quilt_send_latency_seconds",
		Help:    "Event send round-trip latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// UploadLatency records media upload round-trip latency in seconds.
	UploadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "quilt_upload_latency_seconds",
		Help:    "Media upload round-trip latency in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// SyncsTotal counts completed sync long-polls.
	SyncsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quilt_syncs_total",
		Help: "Completed sync long-polls",
	})

	// ReconcileBatchSize records how many member changes one
	// reconciliation pass flushed to the UI sink.
	ReconcileBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "quilt_reconcile_batch_size",
		Help:    "Member changes flushed per reconciliation pass",
		Buckets: []float64{1, 2, 5, 10, 25, 100, 500, 2500},
	})
)

func init() {
	prometheus.MustRegister(
		RoomsJoined,
		QueuedEvents,
		EventsSentTotal,
		MessagesReceived,
		SendLatency,
		UploadLatency,
		SyncsTotal,
		ReconcileBatchSize,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

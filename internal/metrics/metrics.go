// Package metrics defines the Prometheus instrumentation shared by the API
// server and the background workers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wbpulse"

// Metrics holds every collector the pipeline reports to. Register once per
// process via New and pass down by pointer; all operations are safe for
// concurrent use.
type Metrics struct {
	// EventsDetected counts change events by event type before any gating.
	EventsDetected *prometheus.CounterVec

	// EventsDeduplicated counts events dropped by the dedupe ledger.
	EventsDeduplicated prometheus.Counter

	// EventsFiltered counts events dropped by per-cabinet settings.
	EventsFiltered prometheus.Counter

	// DeliveriesTotal counts webhook delivery outcomes. Labels: status
	// (sent, failed, requeued).
	DeliveriesTotal *prometheus.CounterVec

	// DeliveryDuration measures end-to-end webhook send latency including
	// in-process retries.
	DeliveryDuration prometheus.Histogram

	// QueueDepth is the number of queued notifications per priority.
	QueueDepth *prometheus.GaugeVec

	// SyncRuns counts cabinet sync attempts. Labels: status (ok, error).
	SyncRuns *prometheus.CounterVec

	// SyncDuration measures per-cabinet sync latency.
	SyncDuration prometheus.Histogram
}

// New creates and registers all collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_detected_total",
			Help:      "Change events detected between sync snapshots.",
		}, []string{"event_type"}),
		EventsDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_deduplicated_total",
			Help:      "Events suppressed because they were already recorded.",
		}),
		EventsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_filtered_total",
			Help:      "Events suppressed by per-cabinet notification settings.",
		}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook delivery outcomes.",
		}, []string{"status"}),
		DeliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_delivery_duration_seconds",
			Help:      "Webhook send latency including in-process retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Queued notifications per priority.",
		}, []string{"priority"}),
		SyncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Per-cabinet sync attempts.",
		}, []string{"status"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Per-cabinet sync latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// NewDefault registers against the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the exchange ledger.
type Metrics struct {
	// --- Engine ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	LogLength    prometheus.Gauge
	FeeCollected *prometheus.CounterVec

	// --- Event distribution ---
	PublishDrops     prometheus.Counter
	WSClients        prometheus.Gauge
	WSBroadcastDrops prometheus.Counter

	// --- Projections ---
	ProjectionApplied    *prometheus.CounterVec
	ProjectionDuplicates *prometheus.CounterVec
	ProjectionSequence   prometheus.Gauge
	ProjectionRebuilds   prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchDur      prometheus.Histogram
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_engine_ops_applied_total",
			Help: "Mutating operations successfully applied",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_engine_ops_rejected_total",
			Help: "Mutating operations rejected, by error kind",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_engine_op_duration_seconds",
			Help:    "Time to apply a single mutating operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		LogLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_event_log_length",
			Help: "Number of events in the log",
		}),

		FeeCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_fee_collected_total",
			Help: "Fee units credited to the fee account, by asset",
		}, []string{"asset"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_publish_drops_total",
			Help: "Events dropped by the outbound publisher",
		}),

		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		WSBroadcastDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_ws_broadcast_drops_total",
			Help: "WebSocket messages dropped on full client buffers",
		}),

		ProjectionApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_projection_events_applied_total",
			Help: "Events applied by the derived-view projector",
		}, []string{"kind"}),

		ProjectionDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_projection_duplicates_total",
			Help: "Redelivered events ignored by the projector",
		}, []string{"kind"}),

		ProjectionSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_projection_sequence",
			Help: "Last event sequence applied to derived views",
		}),

		ProjectionRebuilds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_projection_rebuilds_total",
			Help: "Full rebuilds of derived views from genesis",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dex_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dex_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

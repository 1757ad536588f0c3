// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	BlocksProcessed       prometheus.Counter
	TransactionsProcessed prometheus.Counter
	EventsClassified      *prometheus.CounterVec
	EventsAppended        prometheus.Counter
	DuplicateAppends      prometheus.Counter
	UnitsSkipped          *prometheus.CounterVec

	// Resolver metrics
	OracleCallLatency  prometheus.Histogram
	OracleCallErrors   prometheus.Counter
	PriceRefreshErrors prometheus.Counter
	LastPriceRefresh   prometheus.Gauge

	// Lifecycle metrics
	TokensMigrated  prometheus.Counter
	TokensQualified prometheus.Counter
	TokensSweptDead prometheus.Counter
	SweepDuration   *prometheus.HistogramVec

	// Aggregation metrics
	CandleUpserts  prometheus.Counter
	CandleRebuilds prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastBlockProcessed  prometheus.Gauge
	LastSuccessfulSweep prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "meme_token_ledger"
	}

	return &Metrics{
		BlocksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks processed",
		}),
		TransactionsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "transactions_processed_total",
			Help:      "Total number of transactions classified",
		}),
		EventsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_classified_total",
			Help:      "Total canonical events produced by the classifier, by kind",
		}, []string{"kind"}),
		EventsAppended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_appended_total",
			Help:      "Total events newly persisted to the ledger",
		}),
		DuplicateAppends: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duplicate_appends_total",
			Help:      "Total appends absorbed by the ledger uniqueness key",
		}),
		UnitsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "units_skipped_total",
			Help:      "Total skipped units of work, by failure stage",
		}, []string{"stage"}),

		OracleCallLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "oracle_call_duration_seconds",
			Help:      "Bonding-curve oracle call latency",
			Buckets:   prometheus.DefBuckets,
		}),
		OracleCallErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "oracle_call_errors_total",
			Help:      "Total failed bonding-curve oracle calls",
		}),
		PriceRefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "price_refresh_errors_total",
			Help:      "Total failed external price cache refreshes",
		}),
		LastPriceRefresh: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "last_price_refresh_timestamp",
			Help:      "Unix timestamp of the last successful price refresh",
		}),

		TokensMigrated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "tokens_migrated_total",
			Help:      "Total tokens transitioned to MIGRATED",
		}),
		TokensQualified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "tokens_qualified_total",
			Help:      "Total tokens that reached qualification",
		}),
		TokensSweptDead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "tokens_swept_dead_total",
			Help:      "Total tokens reclaimed as DEAD by the sweep",
		}),
		SweepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "sweep_duration_seconds",
			Help:      "Periodic sweep latency, by sweep kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),

		CandleUpserts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "candle_upserts_total",
			Help:      "Total candle bucket writes",
		}),
		CandleRebuilds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "candle_rebuilds_total",
			Help:      "Total full candle replays",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total failed database queries",
		}, []string{"database", "operation"}),

		LastBlockProcessed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_block_processed",
			Help:      "Number of the last fully processed block",
		}),
		LastSuccessfulSweep: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sweep_timestamp",
			Help:      "Unix timestamp of the last completed lifecycle sweep",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBlockProcessed marks one block as fully processed.
func RecordBlockProcessed(blockNumber int64) {
	DefaultMetrics.BlocksProcessed.Inc()
	DefaultMetrics.LastBlockProcessed.Set(float64(blockNumber))
}

// RecordEventClassified increments the per-kind classification counter.
func RecordEventClassified(kind string) {
	DefaultMetrics.EventsClassified.WithLabelValues(kind).Inc()
}

// RecordAppend records a ledger append and whether it deduplicated.
func RecordAppend(inserted bool) {
	if inserted {
		DefaultMetrics.EventsAppended.Inc()
	} else {
		DefaultMetrics.DuplicateAppends.Inc()
	}
}

// RecordSkip records a skipped unit of work at the given stage.
func RecordSkip(stage string) {
	DefaultMetrics.UnitsSkipped.WithLabelValues(stage).Inc()
}

// RecordOracleCall records oracle call latency and outcome.
func RecordOracleCall(seconds float64, err error) {
	DefaultMetrics.OracleCallLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.OracleCallErrors.Inc()
	}
}

// RecordSweep records a lifecycle sweep run.
func RecordSweep(sweep string, durationSeconds float64, transitioned int) {
	DefaultMetrics.SweepDuration.WithLabelValues(sweep).Observe(durationSeconds)
	switch sweep {
	case "dead":
		DefaultMetrics.TokensSweptDead.Add(float64(transitioned))
	case "qualification":
		DefaultMetrics.TokensQualified.Add(float64(transitioned))
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

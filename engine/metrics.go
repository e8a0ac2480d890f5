package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the indexing engine
type Metrics struct {
	// Gauges (current values)
	CursorHeight prometheus.Gauge
	FeedHeight   prometheus.Gauge
	EngineState  *prometheus.GaugeVec

	// Counters (cumulative values)
	EventsDecodedTotal    *prometheus.CounterVec
	EventsAppliedTotal    *prometheus.CounterVec
	EventsSkippedTotal    *prometheus.CounterVec
	DecodeErrorsTotal     prometheus.Counter
	ReorgsTotal           prometheus.Counter
	RolledBackEventsTotal prometheus.Counter
	SnapshotsTotal        prometheus.Counter
	SnapshotErrorsTotal   prometheus.Counter

	// Histograms
	ApplyDuration prometheus.Histogram
	ReorgDepth    prometheus.Histogram
}

// NewMetrics creates and registers all engine metrics
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "engine"
	}

	return &Metrics{
		CursorHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "cursor_height",
			Help:      "Highest fully applied block",
		}),
		FeedHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "feed_height",
			Help:      "Latest block reported by the feed",
		}),
		EngineState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "state",
			Help:      "Current engine state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),
		EventsDecodedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_decoded_total",
			Help:      "Total number of log entries decoded",
		}, []string{"kind"}),
		EventsAppliedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_applied_total",
			Help:      "Total number of events applied to derived state",
		}, []string{"kind"}),
		EventsSkippedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_skipped_total",
			Help:      "Total number of events skipped (already applied, unknown schema, rejected)",
		}, []string{"reason"}),
		DecodeErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "decode_errors_total",
			Help:      "Total number of malformed log entries",
		}),
		ReorgsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "reorgs_total",
			Help:      "Total number of chain reorganizations handled",
		}),
		RolledBackEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "rolled_back_events_total",
			Help:      "Total number of applied events inverted during rollbacks",
		}),
		SnapshotsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "snapshots_total",
			Help:      "Total number of metrics snapshots written",
		}),
		SnapshotErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "snapshot_errors_total",
			Help:      "Total number of failed snapshot attempts",
		}),
		ApplyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying one block's events",
			Buckets:   prometheus.DefBuckets,
		}),
		ReorgDepth: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "reorg_depth_blocks",
			Help:      "Depth of handled reorganizations in blocks",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
	}
}

// SetState marks one engine state active and the others inactive
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range []string{StateWatching, StateRollingBack, StateReplaying} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.EngineState.WithLabelValues(s).Set(v)
	}
}

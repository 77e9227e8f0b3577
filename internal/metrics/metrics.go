package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SwipesCommitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_swipes_committed_total",
		Help: "Swipes committed locally, by direction",
	}, []string{"direction"})

	SwipeWritesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_swipe_writes_failed_total",
		Help: "Durable swipe writes that failed after bounded retries",
	})

	SwipesUndone = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_swipes_undone_total",
		Help: "Swipes reverted via undo",
	})

	FeedPagesServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_feed_pages_served_total",
		Help: "Scored feed pages returned to sessions",
	})

	EventsRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_events_routed_total",
		Help: "Change-stream events turned into notifications, by kind",
	}, []string{"kind"})

	EventsDeduped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_events_deduped_total",
		Help: "Change-stream events suppressed by the seen-set",
	})

	EventsIrrelevant = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_events_irrelevant_total",
		Help: "Change-stream events dropped by the relevance filter",
	})

	ReconciliationReads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_reconciliation_reads_total",
		Help: "Unread counter reconciliation reads against the store",
	})

	ReconciliationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_reconciliation_seconds",
		Help:    "Duration of unread counter reconciliation reads",
		Buckets: prometheus.DefBuckets,
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_active_sessions",
		Help: "Currently open engine sessions",
	})
)

// MustRegister registers all engine collectors.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SwipesCommitted,
		SwipeWritesFailed,
		SwipesUndone,
		FeedPagesServed,
		EventsRouted,
		EventsDeduped,
		EventsIrrelevant,
		ReconciliationReads,
		ReconciliationSeconds,
		ActiveSessions,
	)
}

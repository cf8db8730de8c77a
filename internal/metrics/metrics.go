// Prometheus collectors for the feed pipeline and the per-instrument books.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsApplied     *prometheus.CounterVec
	DuplicatesDropped *prometheus.CounterVec
	MalformedEvents   *prometheus.CounterVec
	GapsDetected      *prometheus.CounterVec
	Rebuilds          *prometheus.CounterVec
	FetchRetries      *prometheus.CounterVec
	BufferLength      *prometheus.GaugeVec
	BookOrders        *prometheus.GaugeVec
	BookLevels        *prometheus.GaugeVec
	PoolHits          *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depthbook_events_applied_total",
			Help: "Feed events applied to the book.",
		}, []string{"instrument", "type"}),
		DuplicatesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depthbook_duplicates_dropped_total",
			Help: "Stale or duplicate events dropped by the sequencer.",
		}, []string{"instrument"}),
		MalformedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depthbook_malformed_events_total",
			Help: "Events rejected by the book without being applied.",
		}, []string{"instrument"}),
		GapsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depthbook_sequence_gaps_total",
			Help: "Sequence gaps that triggered a rebuild.",
		}, []string{"instrument"}),
		Rebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depthbook_rebuilds_total",
			Help: "Completed snapshot rebuilds.",
		}, []string{"instrument"}),
		FetchRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depthbook_snapshot_fetch_retries_total",
			Help: "Failed snapshot fetch attempts that were retried.",
		}, []string{"instrument"}),
		BufferLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depthbook_rebuild_buffer_length",
			Help: "Events buffered while a rebuild is in flight.",
		}, []string{"instrument"}),
		BookOrders: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depthbook_book_orders",
			Help: "Resting orders currently in the book.",
		}, []string{"instrument"}),
		BookLevels: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depthbook_book_levels",
			Help: "Linked price levels per side.",
		}, []string{"instrument", "side"}),
		PoolHits: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depthbook_order_pool_hits",
			Help: "Order pool gets served from the free list.",
		}, []string{"instrument"}),
	}
}

// NewNop returns metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recomputes counts snapshot computations per tenant by result (ok|error).
var Recomputes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "occupancy_recompute_total",
		Help: "Total number of occupancy projection recomputations",
	},
	[]string{"tenant", "result"},
)

// RecomputeLatency covers fetch plus projection.
var RecomputeLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "occupancy_recompute_latency_seconds",
		Help:    "Latency in seconds of one fetch-and-project cycle",
		Buckets: prometheus.DefBuckets,
	},
)

var (
	Triggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "occupancy_recompute_triggers_total",
			Help: "Recompute triggers by origin (event|fallback|read|manual|retry)",
		},
		[]string{"origin"},
	)

	ChangeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "occupancy_change_events_total",
			Help: "Change notifications received per source",
		},
		[]string{"source"},
	)

	Resubscribes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "occupancy_resubscribes_total",
			Help: "Change source subscriptions re-established after a disconnect",
		},
		[]string{"source"},
	)

	AmbiguousMatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "occupancy_ambiguous_matches_total",
			Help: "Tables for which more than one active order matched",
		},
	)
)

var (
	Degraded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "occupancy_degraded",
			Help: "1 when the tenant snapshot is served after a failed refresh",
		},
		[]string{"tenant"},
	)

	Generation = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "occupancy_snapshot_generation",
			Help: "Generation counter of the current tenant snapshot",
		},
		[]string{"tenant"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "occupancy_active_sessions",
			Help: "Number of tenants with a live occupancy session",
		},
	)
)

func init() {
	prometheus.MustRegister(Recomputes, RecomputeLatency)
	prometheus.MustRegister(Triggers, ChangeEvents, Resubscribes, AmbiguousMatches)
	prometheus.MustRegister(Degraded, Generation, ActiveSessions)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LookupsTotal counts completed lookups by outcome ("ok" or an error kind).
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationwalk_lookups_total",
			Help: "Number of station lookups handled, by outcome",
		},
		[]string{"outcome"},
	)

	LookupStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stationwalk_lookup_stage_duration_seconds",
			Help:    "Time spent in each lookup stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)

	// LookupRetries counts collaborator calls repeated after a transient failure.
	LookupRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationwalk_lookup_retries_total",
			Help: "Number of retried geocoder and router calls",
		},
		[]string{"stage"},
	)
)

var (
	// OutgoingLatency records outgoing HTTP request latency in seconds,
	// labeled by upstream, method and response status.
	OutgoingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stationwalk_outgoing_request_duration_seconds",
			Help:    "Latency of outgoing HTTP requests to geocoding, routing and data services",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream", "method", "status"},
	)
)

var (
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationwalk_cache_requests_total",
			Help: "Cache lookups by cache name and result (hit, miss, error)",
		},
		[]string{"cache", "result"},
	)
)

var (
	FacilityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stationwalk_facilities",
		Help: "Number of facilities in the published snapshot",
	}, []string{"source"})

	FacilitySnapshotTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stationwalk_facility_snapshot_timestamp_seconds",
		Help: "Unix time the published facility snapshot was loaded",
	}, []string{"source"})

	FacilitySnapshotAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stationwalk_facility_snapshot_age_seconds",
		Help: "Seconds since the published facility snapshot was loaded",
	}, []string{"source"})

	FacilityRowsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationwalk_facility_rows_skipped_total",
		Help: "Facility records dropped on load for invalid coordinates, empty ids or duplicates",
	}, []string{"source", "reason"})

	FacilityRefreshFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationwalk_facility_refresh_failures_total",
		Help: "Number of facility reloads that failed and kept the previous snapshot",
	}, []string{"source"})
)

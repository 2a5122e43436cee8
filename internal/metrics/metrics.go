package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EngineCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestcast_engine_calls_total",
			Help: "Total engine operations by outcome class",
		},
		[]string{"op", "status"},
	)

	EngineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvestcast_engine_latency_seconds",
			Help:    "Engine operation latency in seconds, including store load",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	ForecastPathTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestcast_forecast_path_total",
			Help: "Forecasts by decision reason",
		},
		[]string{"reason"},
	)

	RecordsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestcast_records_imported_total",
			Help: "Total records accepted by the importer",
		},
		[]string{"record"},
	)

	RecordsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestcast_records_rejected_total",
			Help: "Total records rejected by validation",
		},
		[]string{"record"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestcast_cache_requests_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"result"},
	)

	BaselineFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestcast_baseline_fetches_total",
			Help: "Remote baseline table fetches",
		},
		[]string{"scheme", "status"},
	)
)

// WriteTextfile dumps the default registry in the node_exporter textfile
// format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

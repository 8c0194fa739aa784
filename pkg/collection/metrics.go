package collection

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rediscache",
		Subsystem: "collection",
		Name:      "operations_total",
	}, []string{"collection", "op", "result"})

	operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rediscache",
		Subsystem: "collection",
		Name:      "operation_duration_seconds",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"collection", "op"})

	indexLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rediscache",
		Subsystem: "collection",
		Name:      "index_lookups_total",
	}, []string{"collection", "index"})

	staleIndexEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rediscache",
		Subsystem: "collection",
		Name:      "stale_index_entries_total",
	}, []string{"collection", "index"})

	cacheLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rediscache",
		Subsystem: "collection",
		Name:      "cache_loads_total",
	}, []string{"collection"})
)

// Collectors returns the package metrics for registration, e.g.
// prometheus.MustRegister(collection.Collectors()...).
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{operations, operationDuration, indexLookups, staleIndexEntries, cacheLoads}
}

func observe(collection, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(collection, op, result).Inc()
	operationDuration.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())
}

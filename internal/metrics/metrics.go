package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// CacheLookups counts TTL cache reads by namespace and outcome
	// (hit, miss, expired, version_mismatch, corrupt).
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livestock",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "TTL cache lookups by namespace and outcome.",
	}, []string{"namespace", "outcome"})

	// CacheWriteFailures counts writes the store rejected after the single retry.
	CacheWriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livestock",
		Subsystem: "cache",
		Name:      "write_failures_total",
		Help:      "TTL cache writes dropped after clear-and-retry.",
	}, []string{"namespace"})

	// EstimateOutcomes counts capture workflow estimate calls by result class.
	EstimateOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livestock",
		Subsystem: "capture",
		Name:      "estimates_total",
		Help:      "Weight estimate requests by outcome.",
	}, []string{"outcome"})

	// SavedObservations counts observations saved through the workflow, by path.
	SavedObservations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livestock",
		Subsystem: "capture",
		Name:      "saves_total",
		Help:      "Observations saved by the capture workflow (already_persisted or created).",
	}, []string{"path"})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			CacheLookups,
			CacheWriteFailures,
			EstimateOutcomes,
			SavedObservations,
		)
	})
}

package metrics

import (
	"time"

	"mercator-hq/lineage/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks object store operations.
//
// Metrics:
//   - lineage_store_operations_total: Operations by backend, operation, result
//   - lineage_store_operation_duration_seconds: Operation latency histogram
type StoreMetrics struct {
	operationsTotal *prometheus.CounterVec

	duration *prometheus.HistogramVec
}

// NewStoreMetrics creates and registers store metrics with the provided registry.
func NewStoreMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StoreMetrics {
	sm := &StoreMetrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_operations_total",
				Help:      "Total number of object store operations",
			},
			[]string{"backend", "operation", "result"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of object store operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8), // 100µs to 1.6s
			},
			[]string{"backend", "operation"},
		),
	}

	registry.MustRegister(sm.operationsTotal, sm.duration)

	return sm
}

// RecordOperation records one store operation.
func (sm *StoreMetrics) RecordOperation(backend, operation, result string, duration time.Duration) {
	sm.operationsTotal.WithLabelValues(backend, operation, result).Inc()
	sm.duration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

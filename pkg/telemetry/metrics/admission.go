package metrics

import (
	"time"

	"mercator-hq/lineage/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AdmissionMetrics tracks admission webhook decisions.
//
// Metrics:
//   - lineage_admission_requests_total: Mutated writes by kind, operation, outcome
//   - lineage_admission_rejected_writes_total: Writes that set the annotation themselves
//   - lineage_admission_errors_total: Writes allowed unchanged after an internal error
//   - lineage_admission_duration_seconds: Time spent deciding and building the patch
type AdmissionMetrics struct {
	requestsTotal *prometheus.CounterVec

	rejectedTotal *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	duration *prometheus.HistogramVec
}

// NewAdmissionMetrics creates and registers admission metrics with the provided registry.
func NewAdmissionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AdmissionMetrics {
	am := &AdmissionMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_requests_total",
				Help:      "Total number of admitted writes by decision outcome",
			},
			[]string{"kind", "operation", "outcome"},
		),

		rejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_rejected_writes_total",
				Help:      "Total number of writes whose trace context annotation was replaced",
			},
			[]string{"kind"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_errors_total",
				Help:      "Total number of writes allowed unchanged after a mutator error",
			},
			[]string{"kind", "reason"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_duration_seconds",
				Help:      "Duration of admission decisions in seconds",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		am.requestsTotal,
		am.rejectedTotal,
		am.errorsTotal,
		am.duration,
	)

	return am
}

// RecordDecision records one admission decision.
func (am *AdmissionMetrics) RecordDecision(kind, operation, outcome string, rejected bool, duration time.Duration) {
	am.requestsTotal.WithLabelValues(kind, operation, outcome).Inc()
	if rejected {
		am.rejectedTotal.WithLabelValues(kind).Inc()
	}
	am.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError records a write allowed unchanged after an error.
func (am *AdmissionMetrics) RecordError(kind, reason string) {
	am.errorsTotal.WithLabelValues(kind, reason).Inc()
}

package metrics

import (
	"sync"
	"time"

	"mercator-hq/lineage/pkg/admission"
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/exporter"

	"github.com/prometheus/client_golang/prometheus"
)

// otherKind replaces kind labels beyond the cardinality limit.
const otherKind = "other"

// Collector is the main orchestrator for all Prometheus metrics in Lineage.
// It manages metric registration and provides a unified interface for
// recording metrics across the webhook, the object store and the span
// exporter.
//
// With an empty traced kinds list every kind reaching the webhook becomes a
// label value, so kind labels are capped by a cardinality limiter.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	admissionMetrics *AdmissionMetrics

	storeMetrics *StoreMetrics

	exportOnce sync.Once

	// Cardinality tracking
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "lineage",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = config.DefaultLatencyBuckets
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(500),
	}

	c.admissionMetrics = NewAdmissionMetrics(cfg, registry)
	c.storeMetrics = NewStoreMetrics(cfg, registry)

	return c
}

// RecordAdmission records a decided admission request.
//
// Parameters:
//   - kind: Object kind (e.g., "Deployment")
//   - operation: Admission operation ("CREATE", "UPDATE")
//   - outcome: Decision outcome
//   - rejected: Whether the request set the annotation itself
//   - duration: Time spent in the webhook
func (c *Collector) RecordAdmission(kind, operation string, outcome admission.Outcome, rejected bool, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.admissionMetrics.RecordDecision(c.kindLabel(kind), operation, string(outcome), rejected, duration)
}

// RecordAdmissionError records a request allowed unchanged after an error.
func (c *Collector) RecordAdmissionError(kind, reason string) {
	if !c.config.Enabled {
		return
	}
	c.admissionMetrics.RecordError(c.kindLabel(kind), reason)
}

// RecordStoreOperation records an object store operation.
//
// Parameters:
//   - backend: Store backend ("memory", "sqlite")
//   - operation: "create", "update", "get", "links"
//   - result: "ok", "conflict", "not_found", "error"
//   - duration: Operation duration
func (c *Collector) RecordStoreOperation(backend, operation, result string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.storeMetrics.RecordOperation(backend, operation, result, duration)
}

// RegisterExporter exposes the span buffer and export counters of source.
// Only the first call registers; exporter statistics are process wide.
func (c *Collector) RegisterExporter(source exporter.StatsSource) {
	if !c.config.Enabled || source == nil {
		return
	}
	c.exportOnce.Do(func() {
		registerExportMetrics(c.config, c.registry, source)
	})
}

func (c *Collector) kindLabel(kind string) string {
	if !c.cardinalityLimiter.Allow(kind) {
		return otherKind
	}
	return kind
}

// Registry returns the Prometheus registry used by this collector.
// This can be used to create an HTTP handler for the /metrics endpoint:
//
//	http.Handle("/metrics", promhttp.HandlerFor(
//		collector.Registry(),
//		promhttp.HandlerOpts{},
//	))
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this value would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}

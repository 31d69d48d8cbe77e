// Package metrics provides Prometheus metrics collection for Lineage.
//
// # Overview
//
// The metrics package exposes what the admission webhook decided, how the
// object store performed, and whether finished spans are reaching the
// collector.
//
// # Metrics Categories
//
//   - Admission Metrics: Decisions by outcome, rejected direct writes, errors, latency
//   - Store Metrics: Object store operations and latency
//   - Export Metrics: Span buffer occupancy, drops, exported spans, collector connectivity
//
// Export metrics are read from exporter.Stats at scrape time through
// GaugeFunc and CounterFunc collectors, so span production never touches a
// metric.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RegisterExporter(exp.Stats)
//
//	wh, err := webhook.NewFromConfig(&cfg.Admission, logger, collector)
//
//	http.Handle("/metrics", collector.Handler())
//
// # Custom Histogram Buckets
//
// Admission latency uses sub-millisecond buckets by default:
//
//	0.1ms, 0.25ms, 0.5ms, 1ms, 2.5ms, 5ms, 10ms, 50ms
package metrics

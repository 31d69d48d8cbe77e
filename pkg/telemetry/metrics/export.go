package metrics

import (
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/exporter"

	"github.com/prometheus/client_golang/prometheus"
)

// registerExportMetrics exposes span buffer and export counters read from
// source at scrape time. Nothing is recorded on the span path.
//
// Metrics:
//   - lineage_span_buffer_bytes / lineage_span_buffer_spans: Current occupancy
//   - lineage_span_buffer_max_bytes: Configured byte budget
//   - lineage_spans_enqueued_total / lineage_spans_dropped_total / lineage_spans_exported_total
//   - lineage_spans_rejected_total: Spans the collector refused and that were discarded
//   - lineage_span_export_batches_total / lineage_span_export_failures_total
//   - lineage_span_collector_connected: 1 while the collector connection is up
func registerExportMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, source exporter.StatsSource) {
	gauge := func(name, help string, value func(exporter.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(source()) })
	}
	counter := func(name, help string, value func(exporter.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(source())) })
	}

	registry.MustRegister(
		gauge("span_buffer_bytes", "Bytes of finished spans waiting for export",
			func(s exporter.Stats) float64 { return float64(s.BufferedBytes) }),
		gauge("span_buffer_spans", "Finished spans waiting for export",
			func(s exporter.Stats) float64 { return float64(s.BufferedSpans) }),
		gauge("span_buffer_max_bytes", "Byte budget of the span buffer",
			func(s exporter.Stats) float64 { return float64(s.MaxBytes) }),
		gauge("span_collector_connected", "Whether the collector connection is up",
			func(s exporter.Stats) float64 {
				if s.Connected {
					return 1
				}
				return 0
			}),
		counter("spans_enqueued_total", "Total number of spans accepted into the buffer",
			func(s exporter.Stats) uint64 { return s.Enqueued }),
		counter("spans_dropped_total", "Total number of spans dropped because the buffer was full",
			func(s exporter.Stats) uint64 { return s.Dropped }),
		counter("spans_exported_total", "Total number of spans accepted by the collector",
			func(s exporter.Stats) uint64 { return s.Exported }),
		counter("spans_rejected_total", "Total number of spans the collector rejected permanently",
			func(s exporter.Stats) uint64 { return s.Rejected }),
		counter("span_export_batches_total", "Total number of export requests sent",
			func(s exporter.Stats) uint64 { return s.Batches }),
		counter("span_export_failures_total", "Total number of failed connects and uploads",
			func(s exporter.Stats) uint64 { return s.Failures }),
	)
}

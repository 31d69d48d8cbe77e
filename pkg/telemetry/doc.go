// Package telemetry groups the observability packages of lineage.
//
// # Components
//
//   - exporter: byte-bounded span buffer and OTLP/gRPC export
//   - tracing: tracer setup, propagation and object span helpers
//   - logging: structured logging with request and trace fields
//   - metrics: Prometheus metrics for admission, store and export
//   - health: liveness and readiness endpoints
//
// # Usage
//
//	exp, err := tracing.InitializeExporter(cfg.Telemetry.Tracing.ServiceName,
//		tracing.WithTracingConfig(&cfg.Telemetry.Tracing),
//		tracing.WithExporterConfig(&cfg.Exporter),
//	)
//	if err != nil {
//		return err
//	}
//	defer exp.Shutdown(ctx)
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RegisterExporter(exp.Stats)
//	mux.Handle("/metrics", collector.Handler())
//
// Spans are still created when export is disabled, so trace contexts keep
// flowing into object annotations without a collector.
package telemetry

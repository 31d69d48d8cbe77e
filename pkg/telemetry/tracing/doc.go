// Package tracing carries trace context across asynchronous control loops.
//
// # Overview
//
// A control loop reacts to object changes long after the request that made
// the change has returned. The admission webhook stores the request's trace
// context in an annotation on the object; this package restores it so that
// the loop's spans join the same trace.
//
// # Usage
//
// Build the exporter once at process start and thread it through contexts:
//
//	exp, err := tracing.InitializeExporter("deployment-controller",
//	    tracing.WithExporterConfig(&cfg.Exporter),
//	    tracing.WithTracingConfig(&cfg.Telemetry.Tracing),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx = tracing.ContextWithExporter(ctx, exp)
//
// Then, for every unit of work, pick the one object the work is for:
//
//	ctx = tracing.WithObject(ctx, deployment)
//	ctx, span := tracing.StartSpan(ctx, "scale replicas")
//	defer span.End()
//
// WithObject is explicit on purpose. An action informed by several objects
// adopts the context of the object whose desired state it fulfills, never
// one inferred automatically.
//
// # Export
//
// Ended, sampled spans are converted to OTLP and placed in a byte-bounded
// buffer. A single goroutine drains it over OTLP/gRPC. When the collector is
// unreachable new spans are dropped once the buffer is full and the
// connection is retried on a fixed interval. StartSpan and End never block
// on the network.
//
// # Sampling
//
// New root traces follow telemetry.tracing.sampler (always, never, ratio).
// Children always follow their parent, so a sampled annotation stays sampled
// across every loop that adopts it.
//
// # Transport Propagation
//
// Alongside the annotation, the ambient context travels with outgoing calls
// as W3C traceparent/tracestate headers:
//
//	client := &http.Client{Transport: tracing.Transport(nil, exp)}
//	ctx = tracing.AppendOutgoing(ctx) // gRPC metadata
package tracing

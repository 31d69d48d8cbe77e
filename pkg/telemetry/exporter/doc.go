// Package exporter moves finished spans off the hot path and ships them to an
// OTLP collector.
//
// # Pipeline
//
//	span.End() -> Processor.OnEnd -> SpanBuffer (bounded by bytes) -> drain goroutine -> otlptrace.Client
//
// Producers never wait on the network. The buffer is bounded by the
// serialized size of spans (1 MiB by default); when it is full the newest span
// is dropped and counted. A single goroutine uploads batches in FIFO order
// over one long-lived OTLP/gRPC connection.
//
// # Failures
//
// When the collector cannot be reached, or an upload fails, the batch stays at
// the head of the buffer, the connection is closed, and a new connection is
// attempted after a fixed interval (5 minutes by default). Spans already
// accepted by the collector are never sent twice. Nothing is written to disk;
// the buffer is lost when the process exits.
//
// # Usage
//
//	exp, err := exporter.New(exporter.Config{
//	    NewClient: exporter.NewGRPCClientFactory(exporter.GRPCOptions{
//	        Endpoint: "otel-collector:4317",
//	        Insecure: true,
//	    }),
//	})
//	if err != nil {
//	    return err
//	}
//	exp.Start(ctx)
//	defer exp.Stop(context.Background())
//
//	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(exp.Processor()))
package exporter

package tracing

import (
	"context"
	"net/http"
	"strconv"

	"mercator-hq/lineage/pkg/tracecontext"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

// Transport propagation
//
// The trace context ambient in a context.Context travels with every outgoing
// call as the W3C headers, independently of the annotation persisted on
// objects:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//	tracestate:  congo=t61rcWkgMzE
//
// The same two keys are used for gRPC metadata and string maps.

var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// Propagator returns the W3C trace context and baggage propagator.
func Propagator() propagation.TextMapPropagator {
	return propagator
}

// Extract returns ctx carrying the trace context found in headers as a
// remote parent. Missing or malformed headers leave ctx unchanged.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return propagator.Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the trace context ambient in ctx into headers.
func Inject(ctx context.Context, headers http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(headers))
}

// ExtractFromMap extracts trace context from a string map.
func ExtractFromMap(ctx context.Context, carrier map[string]string) context.Context {
	return propagator.Extract(ctx, propagation.MapCarrier(carrier))
}

// InjectToMap injects trace context into a string map.
func InjectToMap(ctx context.Context, carrier map[string]string) {
	propagator.Inject(ctx, propagation.MapCarrier(carrier))
}

// metadataCarrier adapts gRPC metadata to a TextMapCarrier.
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// ExtractFromMetadata extracts trace context from gRPC metadata.
func ExtractFromMetadata(ctx context.Context, md metadata.MD) context.Context {
	return propagator.Extract(ctx, metadataCarrier(md))
}

// InjectToMetadata writes the trace context ambient in ctx into md.
func InjectToMetadata(ctx context.Context, md metadata.MD) {
	propagator.Inject(ctx, metadataCarrier(md))
}

// ExtractIncoming extracts trace context from the incoming gRPC metadata of
// a server call.
func ExtractIncoming(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	return ExtractFromMetadata(ctx, md)
}

// AppendOutgoing returns ctx with the ambient trace context added to its
// outgoing gRPC metadata.
func AppendOutgoing(ctx context.Context) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	InjectToMetadata(ctx, md)
	return metadata.NewOutgoingContext(ctx, md)
}

// Transport wraps rt so every request carries the ambient trace context and
// is recorded as a client span by the exporter in the request context. A nil
// rt uses http.DefaultTransport.
func Transport(rt http.RoundTripper, e *Exporter) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	opts := []otelhttp.Option{otelhttp.WithPropagators(propagator)}
	if e != nil {
		opts = append(opts, otelhttp.WithTracerProvider(e.TracerProvider()))
	} else {
		opts = append(opts, otelhttp.WithTracerProvider(noopProvider))
	}
	return otelhttp.NewTransport(rt, opts...)
}

// Middleware returns HTTP middleware that makes e and the trace context of
// the incoming request available to handlers through the request context.
func Middleware(e *Exporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := Extract(r.Context(), r.Header)
			if e != nil {
				ctx = ContextWithExporter(ctx, e)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithTraceContext returns ctx with tc as the remote parent of the
// next span. An invalid tc leaves ctx unchanged.
func ContextWithTraceContext(ctx context.Context, tc tracecontext.TraceContext) context.Context {
	if !tc.IsValid() {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, tc.SpanContext())
}

// TraceContextFromContext returns the trace context ambient in ctx.
func TraceContextFromContext(ctx context.Context) (tracecontext.TraceContext, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return tracecontext.TraceContext{}, false
	}
	return tracecontext.FromSpanContext(sc), true
}

// PropagationDebugInfo describes the trace context headers of a request.
func PropagationDebugInfo(headers http.Header) map[string]string {
	info := make(map[string]string)

	traceparent := headers.Get(tracecontext.TraceParentHeader)
	if traceparent == "" {
		info["traceparent"] = "not present"
		return info
	}
	info["traceparent"] = traceparent

	tracestate := headers.Get(tracecontext.TraceStateHeader)
	if tracestate != "" {
		info["tracestate"] = tracestate
	}

	tc, err := tracecontext.DecodeHeaders(traceparent, tracestate)
	if err != nil {
		info["error"] = err.Error()
		return info
	}
	info["trace_id"] = tc.TraceID.String()
	info["parent_id"] = tc.SpanID.String()
	info["sampled"] = strconv.FormatBool(tc.Sampled)
	return info
}

package tracecontext

import (
	"crypto/rand"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// TraceContext identifies a position in a trace. It is an immutable value and
// carries no object identity.
type TraceContext struct {
	TraceID    trace.TraceID
	SpanID     trace.SpanID
	Sampled    bool
	TraceState trace.TraceState
}

// IsValid reports whether both identifiers are non-zero.
func (tc TraceContext) IsValid() bool {
	return tc.TraceID.IsValid() && tc.SpanID.IsValid()
}

// Equal reports whether two contexts carry the same identifiers, sampling
// decision and trace state.
func (tc TraceContext) Equal(other TraceContext) bool {
	return tc.TraceID == other.TraceID &&
		tc.SpanID == other.SpanID &&
		tc.Sampled == other.Sampled &&
		tc.TraceState.String() == other.TraceState.String()
}

// SameTrace reports whether both contexts belong to the same trace.
func (tc TraceContext) SameTrace(other TraceContext) bool {
	return tc.TraceID == other.TraceID
}

// WithSampled returns a copy with the sampled flag set to sampled.
func (tc TraceContext) WithSampled(sampled bool) TraceContext {
	tc.Sampled = sampled
	return tc
}

// Flags returns the W3C trace flags byte.
func (tc TraceContext) Flags() trace.TraceFlags {
	var flags trace.TraceFlags
	return flags.WithSampled(tc.Sampled)
}

// SpanContext converts the context into a remote OpenTelemetry span context.
func (tc TraceContext) SpanContext() trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tc.TraceID,
		SpanID:     tc.SpanID,
		TraceFlags: tc.Flags(),
		TraceState: tc.TraceState,
		Remote:     true,
	})
}

// String returns the encoded form.
func (tc TraceContext) String() string {
	return Encode(tc)
}

// FromSpanContext converts an OpenTelemetry span context.
func FromSpanContext(sc trace.SpanContext) TraceContext {
	return TraceContext{
		TraceID:    sc.TraceID(),
		SpanID:     sc.SpanID(),
		Sampled:    sc.IsSampled(),
		TraceState: sc.TraceState(),
	}
}

// NewSampled generates a fresh random sampled context, the root of a new trace.
func NewSampled() (TraceContext, error) {
	var tc TraceContext
	for !tc.IsValid() {
		if _, err := rand.Read(tc.TraceID[:]); err != nil {
			return TraceContext{}, fmt.Errorf("failed to generate trace id: %w", err)
		}
		if _, err := rand.Read(tc.SpanID[:]); err != nil {
			return TraceContext{}, fmt.Errorf("failed to generate span id: %w", err)
		}
	}
	tc.Sampled = true
	return tc, nil
}

package admission

import (
	"errors"

	"mercator-hq/lineage/pkg/tracecontext"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrWriteRejected describes a request that tried to set the trace-context
// annotation itself. The write still proceeds with the computed value.
var ErrWriteRejected = errors.New("trace context annotation is managed by admission and cannot be set directly")

// LinkReasonOverwrite is the link.reason attribute of the link recorded when
// an annotation moves to a different trace.
const LinkReasonOverwrite = "trace-context-overwrite"

// Outcome names the row of the decision table a write fell into.
type Outcome string

const (
	// OutcomeNone: no stored and no incoming context. No annotation.
	OutcomeNone Outcome = "none"

	// OutcomeWritten: the incoming context is stored for the first time.
	OutcomeWritten Outcome = "written"

	// OutcomeRetained: the request carried no context; the stored one stays.
	OutcomeRetained Outcome = "retained"

	// OutcomePreserved: the request belongs to the stored trace.
	OutcomePreserved Outcome = "preserved"

	// OutcomeOverwritten: the request belongs to another trace and replaces
	// the stored context. A Link to the previous context is returned.
	OutcomeOverwritten Outcome = "overwritten"
)

// Input is everything a decision depends on.
type Input struct {
	// Existing is the annotation value stored on the object before the write.
	Existing    string
	HasExisting bool

	// Incoming is the trace context of the request performing the write.
	// The zero value means none.
	Incoming trace.SpanContext

	// Requested is the annotation value found in the request body.
	Requested    string
	HasRequested bool
}

// Decision is the result of Mutate.
type Decision struct {
	// Annotation is the value to store when Write is true.
	Annotation string

	// Write reports whether the object carries the annotation after the
	// write. When false the annotation is removed.
	Write bool

	// Link references the context that was overwritten. Only set for
	// OutcomeOverwritten.
	Link *Link

	// Rejected reports that the request tried to set the annotation to a
	// value other than the stored one. See ErrWriteRejected.
	Rejected bool

	// ExistingMalformed reports that a stored value could not be decoded and
	// was treated as absent.
	ExistingMalformed bool

	Outcome Outcome
}

// Link points from the span of the new context back to the context it
// replaced. It is recorded on a span, never stored on the object.
type Link struct {
	TraceID    trace.TraceID
	SpanID     trace.SpanID
	TraceState trace.TraceState
	Sampled    bool
	Reason     string
}

// SpanContext returns the linked context as a remote span context.
func (l Link) SpanContext() trace.SpanContext {
	var flags trace.TraceFlags
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    l.TraceID,
		SpanID:     l.SpanID,
		TraceFlags: flags.WithSampled(l.Sampled),
		TraceState: l.TraceState,
		Remote:     true,
	})
}

// OTel converts the link for trace.WithLinks or Span.AddLink.
func (l Link) OTel() trace.Link {
	return trace.Link{
		SpanContext: l.SpanContext(),
		Attributes:  []attribute.KeyValue{attribute.String("link.reason", l.Reason)},
	}
}

// Mutate computes the annotation for one write.
func Mutate(in Input) Decision {
	var d Decision

	existing, hasExisting := tracecontext.TraceContext{}, false
	if in.HasExisting {
		tc, err := tracecontext.Decode(in.Existing)
		if err != nil {
			d.ExistingMalformed = true
		} else {
			existing, hasExisting = tc, true
		}
	}

	incoming := tracecontext.FromSpanContext(in.Incoming)
	hasIncoming := incoming.IsValid()

	switch {
	case !hasExisting && !hasIncoming:
		d.Outcome = OutcomeNone

	case !hasExisting:
		d.Outcome = OutcomeWritten
		d.Write = true
		d.Annotation = tracecontext.Encode(incoming)

	case !hasIncoming:
		d.Outcome = OutcomeRetained
		d.Write = true
		d.Annotation = in.Existing

	case existing.SameTrace(incoming):
		d.Outcome = OutcomePreserved
		d.Write = true
		if incoming.Sampled && !existing.Sampled {
			d.Annotation = tracecontext.Encode(existing.WithSampled(true))
		} else {
			d.Annotation = in.Existing
		}

	default:
		d.Outcome = OutcomeOverwritten
		d.Write = true
		d.Annotation = tracecontext.Encode(incoming.WithSampled(incoming.Sampled || existing.Sampled))
		d.Link = &Link{
			TraceID:    existing.TraceID,
			SpanID:     existing.SpanID,
			TraceState: existing.TraceState,
			Sampled:    existing.Sampled,
			Reason:     LinkReasonOverwrite,
		}
	}

	if in.HasRequested && (!in.HasExisting || in.Requested != in.Existing) {
		d.Rejected = true
	}
	return d
}

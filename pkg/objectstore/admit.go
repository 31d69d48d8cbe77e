package objectstore

import (
	"context"
	"log/slog"

	"mercator-hq/lineage/pkg/admission"
	"mercator-hq/lineage/pkg/telemetry/logging"
	"mercator-hq/lineage/pkg/telemetry/tracing"
	"mercator-hq/lineage/pkg/tracecontext"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// admitter runs the mutator on writes before they are persisted.
type admitter struct {
	key    string
	kinds  *admission.KindSet
	logger *slog.Logger
}

func newAdmitter(opts Options, backend string) *admitter {
	return &admitter{
		key:    tracecontext.AnnotationKey(opts.Stage),
		kinds:  opts.Kinds,
		logger: opts.Logger.With("component", "objectstore."+backend),
	}
}

// write is one admitted write in progress. End must be called once the
// write is persisted or abandoned.
type write struct {
	ctx      context.Context
	span     trace.Span
	decision admission.Decision
	traced   bool
}

// admit applies the mutator to obj in place. oldObj is nil on create.
// A span linked to the overwritten context is started when the writer
// carries a valid context.
func (a *admitter) admit(ctx context.Context, operation string, oldObj, obj *unstructured.Unstructured) *write {
	w := &write{ctx: ctx, span: trace.SpanFromContext(context.Background())}
	if !a.kinds.Matches(obj.GroupVersionKind()) {
		return w
	}
	w.traced = true

	w.ctx = logging.WithObject(w.ctx, obj.GetKind(), obj.GetNamespace(), obj.GetName())
	w.ctx = logging.WithOperation(w.ctx, operation)

	incoming := trace.SpanContextFromContext(ctx)
	if incoming.IsValid() {
		w.ctx, w.span = tracing.StartSpan(w.ctx, "objectstore."+operation,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.String(tracing.AttrAdmissionOperation, operation)),
		)
	}

	// Apply takes a metav1.Object; a typed nil would not compare equal to nil.
	if oldObj == nil {
		w.decision = admission.Apply(nil, obj, incoming, a.key)
	} else {
		w.decision = admission.Apply(oldObj, obj, incoming, a.key)
	}
	d := w.decision

	if d.Link != nil {
		w.span.AddLink(d.Link.OTel())
	}
	tracing.SetObjectAttributes(w.span, obj)
	w.span.SetAttributes(
		attribute.String(tracing.AttrAdmissionOutcome, string(d.Outcome)),
		attribute.Bool(tracing.AttrAdmissionRejected, d.Rejected),
	)

	if d.ExistingMalformed {
		a.logger.WarnContext(w.ctx, "Stored trace context is malformed, treating it as absent")
	}
	if d.Rejected {
		a.logger.InfoContext(w.ctx, "Write set the trace context annotation, value replaced",
			"error", admission.ErrWriteRejected)
	}
	a.logger.DebugContext(w.ctx, "Write admitted", "outcome", d.Outcome, "linked", d.Link != nil)
	return w
}

// end finishes the span of the write, recording err if the write failed.
func (w *write) end(err error) {
	if err != nil {
		tracing.SetErrorAttributes(w.span, err, result(err))
	}
	w.span.End()
}

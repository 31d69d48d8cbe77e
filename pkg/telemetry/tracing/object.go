package tracing

import (
	"context"
	"fmt"

	"mercator-hq/lineage/pkg/tracecontext"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Attribute keys for the object a span acts on.
const (
	AttrObjectUID             = "object.uid"
	AttrObjectKind            = "object.kind"
	AttrObjectAPIVersion      = "object.api_version"
	AttrObjectNamespace       = "object.namespace"
	AttrObjectName            = "object.name"
	AttrObjectGeneration      = "object.generation"
	AttrObjectResourceVersion = "object.resource_version"

	AttrAdmissionOperation = "admission.operation"
	AttrAdmissionOutcome   = "admission.outcome"
	AttrAdmissionRejected  = "admission.write_rejected"

	AttrErrorType    = "lineage.error.type"
	AttrErrorMessage = "error.message"
)

// WithObject returns ctx with the trace context stored on obj as the parent
// of the next span. The object's annotation is looked up under every
// reserved key; when it is absent or malformed ctx is returned unchanged.
//
// Call WithObject for the single object whose desired state the work is
// fulfilling, not for every object it reads. Calling it twice with the same
// object yields the same parent.
func WithObject(ctx context.Context, obj metav1.Object) context.Context {
	tc, ok := objectContext(obj)
	if !ok {
		return ctx
	}
	return ContextWithTraceContext(ctx, tc)
}

// objectContext returns the first decodable reserved annotation of obj.
func objectContext(obj metav1.Object) (tracecontext.TraceContext, bool) {
	if obj == nil {
		return tracecontext.TraceContext{}, false
	}
	for _, key := range tracecontext.ReservedKeys() {
		tc, err := tracecontext.FromObject(obj, key)
		if err == nil {
			return tc, true
		}
	}
	return tracecontext.TraceContext{}, false
}

type objectKinder interface {
	GetObjectKind() schema.ObjectKind
}

// ObjectAttributes returns the identity attributes of obj. Kind and API
// version are included when obj is a runtime object that knows them.
func ObjectAttributes(obj metav1.Object) []attribute.KeyValue {
	if obj == nil {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, 7)
	if k, ok := obj.(objectKinder); ok {
		gvk := k.GetObjectKind().GroupVersionKind()
		if gvk.Kind != "" {
			attrs = append(attrs,
				attribute.String(AttrObjectKind, gvk.Kind),
				attribute.String(AttrObjectAPIVersion, gvk.GroupVersion().String()),
			)
		}
	}
	if uid := obj.GetUID(); uid != "" {
		attrs = append(attrs, attribute.String(AttrObjectUID, string(uid)))
	}
	if ns := obj.GetNamespace(); ns != "" {
		attrs = append(attrs, attribute.String(AttrObjectNamespace, ns))
	}
	attrs = append(attrs, attribute.String(AttrObjectName, obj.GetName()))
	if gen := obj.GetGeneration(); gen != 0 {
		attrs = append(attrs, attribute.Int64(AttrObjectGeneration, gen))
	}
	if rv := obj.GetResourceVersion(); rv != "" {
		attrs = append(attrs, attribute.String(AttrObjectResourceVersion, rv))
	}
	return attrs
}

// SetObjectAttributes records the identity of obj on span.
//
// Example:
//
//	ctx, span := tracing.StartSpan(tracing.WithObject(ctx, deploy), "scale")
//	defer span.End()
//	tracing.SetObjectAttributes(span, deploy)
func SetObjectAttributes(span trace.Span, obj metav1.Object) {
	span.SetAttributes(ObjectAttributes(obj)...)
}

// SetErrorAttributes records err on span and marks the span failed.
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}

	span.SetAttributes(
		attribute.Bool("error", true),
		attribute.String(AttrErrorType, errorType),
		attribute.String(AttrErrorMessage, err.Error()),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds a named event to the span with optional attributes.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// AttributeBuilder provides a fluent interface for building span attributes.
type AttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewAttributeBuilder creates a new attribute builder.
func NewAttributeBuilder() *AttributeBuilder {
	return &AttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 10),
	}
}

// WithObject adds the identity attributes of obj.
func (ab *AttributeBuilder) WithObject(obj metav1.Object) *AttributeBuilder {
	ab.attrs = append(ab.attrs, ObjectAttributes(obj)...)
	return ab
}

// WithAdmission adds the admission operation and outcome.
func (ab *AttributeBuilder) WithAdmission(operation, outcome string, rejected bool) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.String(AttrAdmissionOperation, operation),
		attribute.String(AttrAdmissionOutcome, outcome),
		attribute.Bool(AttrAdmissionRejected, rejected),
	)
	return ab
}

// WithCustom adds a custom attribute.
func (ab *AttributeBuilder) WithCustom(key string, value interface{}) *AttributeBuilder {
	switch v := value.(type) {
	case string:
		ab.attrs = append(ab.attrs, attribute.String(key, v))
	case int:
		ab.attrs = append(ab.attrs, attribute.Int(key, v))
	case int64:
		ab.attrs = append(ab.attrs, attribute.Int64(key, v))
	case float64:
		ab.attrs = append(ab.attrs, attribute.Float64(key, v))
	case bool:
		ab.attrs = append(ab.attrs, attribute.Bool(key, v))
	default:
		ab.attrs = append(ab.attrs, attribute.String(key, fmt.Sprintf("%v", v)))
	}
	return ab
}

// Build returns the built attributes as a trace.SpanStartOption.
func (ab *AttributeBuilder) Build() trace.SpanStartOption {
	return trace.WithAttributes(ab.attrs...)
}

// Apply applies the attributes to a span.
func (ab *AttributeBuilder) Apply(span trace.Span) {
	span.SetAttributes(ab.attrs...)
}

// Attributes returns the raw attribute slice.
func (ab *AttributeBuilder) Attributes() []attribute.KeyValue {
	return ab.attrs
}

package exporter

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	resourcev1 "go.opentelemetry.io/proto/otlp/resource/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

// newEntry converts a finished span into a buffer entry.
func newEntry(s sdktrace.ReadOnlySpan) Entry {
	span := spanToProto(s)
	return Entry{
		Span:     span,
		Scope:    s.InstrumentationScope(),
		Resource: s.Resource(),
		Size:     proto.Size(span),
	}
}

func spanToProto(s sdktrace.ReadOnlySpan) *tracev1.Span {
	sc := s.SpanContext()
	tid := sc.TraceID()
	sid := sc.SpanID()

	out := &tracev1.Span{
		TraceId:                tid[:],
		SpanId:                 sid[:],
		TraceState:             sc.TraceState().String(),
		Flags:                  spanFlags(sc.TraceFlags(), s.Parent()),
		Name:                   s.Name(),
		Kind:                   spanKind(s.SpanKind()),
		StartTimeUnixNano:      uint64(s.StartTime().UnixNano()),
		EndTimeUnixNano:        uint64(s.EndTime().UnixNano()),
		Attributes:             keyValues(s.Attributes()),
		DroppedAttributesCount: uint32(s.DroppedAttributes()),
		DroppedEventsCount:     uint32(s.DroppedEvents()),
		DroppedLinksCount:      uint32(s.DroppedLinks()),
		Status:                 status(s.Status()),
	}

	if parent := s.Parent(); parent.SpanID().IsValid() {
		psid := parent.SpanID()
		out.ParentSpanId = psid[:]
	}

	for _, ev := range s.Events() {
		out.Events = append(out.Events, &tracev1.Span_Event{
			TimeUnixNano:           uint64(ev.Time.UnixNano()),
			Name:                   ev.Name,
			Attributes:             keyValues(ev.Attributes),
			DroppedAttributesCount: uint32(ev.DroppedAttributeCount),
		})
	}

	for _, l := range s.Links() {
		ltid := l.SpanContext.TraceID()
		lsid := l.SpanContext.SpanID()
		out.Links = append(out.Links, &tracev1.Span_Link{
			TraceId:                ltid[:],
			SpanId:                 lsid[:],
			TraceState:             l.SpanContext.TraceState().String(),
			Attributes:             keyValues(l.Attributes),
			DroppedAttributesCount: uint32(l.DroppedAttributeCount),
			Flags:                  spanFlags(l.SpanContext.TraceFlags(), l.SpanContext),
		})
	}

	return out
}

// spanFlags packs the W3C flags and the remote bit of the related context.
func spanFlags(tf trace.TraceFlags, related trace.SpanContext) uint32 {
	flags := uint32(tf) | uint32(tracev1.SpanFlags_SPAN_FLAGS_CONTEXT_HAS_IS_REMOTE_MASK)
	if related.IsRemote() {
		flags |= uint32(tracev1.SpanFlags_SPAN_FLAGS_CONTEXT_IS_REMOTE_MASK)
	}
	return flags
}

func spanKind(k trace.SpanKind) tracev1.Span_SpanKind {
	switch k {
	case trace.SpanKindInternal:
		return tracev1.Span_SPAN_KIND_INTERNAL
	case trace.SpanKindServer:
		return tracev1.Span_SPAN_KIND_SERVER
	case trace.SpanKindClient:
		return tracev1.Span_SPAN_KIND_CLIENT
	case trace.SpanKindProducer:
		return tracev1.Span_SPAN_KIND_PRODUCER
	case trace.SpanKindConsumer:
		return tracev1.Span_SPAN_KIND_CONSUMER
	default:
		return tracev1.Span_SPAN_KIND_UNSPECIFIED
	}
}

func status(s sdktrace.Status) *tracev1.Status {
	out := &tracev1.Status{Message: s.Description}
	switch s.Code {
	case codes.Ok:
		out.Code = tracev1.Status_STATUS_CODE_OK
	case codes.Error:
		out.Code = tracev1.Status_STATUS_CODE_ERROR
	default:
		out.Code = tracev1.Status_STATUS_CODE_UNSET
	}
	return out
}

func keyValues(attrs []attribute.KeyValue) []*commonv1.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]*commonv1.KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		out = append(out, &commonv1.KeyValue{Key: string(kv.Key), Value: anyValue(kv.Value)})
	}
	return out
}

func anyValue(v attribute.Value) *commonv1.AnyValue {
	switch v.Type() {
	case attribute.BOOL:
		return &commonv1.AnyValue{Value: &commonv1.AnyValue_BoolValue{BoolValue: v.AsBool()}}
	case attribute.INT64:
		return &commonv1.AnyValue{Value: &commonv1.AnyValue_IntValue{IntValue: v.AsInt64()}}
	case attribute.FLOAT64:
		return &commonv1.AnyValue{Value: &commonv1.AnyValue_DoubleValue{DoubleValue: v.AsFloat64()}}
	case attribute.STRING:
		return &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: v.AsString()}}
	case attribute.BOOLSLICE:
		var values []*commonv1.AnyValue
		for _, b := range v.AsBoolSlice() {
			values = append(values, &commonv1.AnyValue{Value: &commonv1.AnyValue_BoolValue{BoolValue: b}})
		}
		return arrayValue(values)
	case attribute.INT64SLICE:
		var values []*commonv1.AnyValue
		for _, i := range v.AsInt64Slice() {
			values = append(values, &commonv1.AnyValue{Value: &commonv1.AnyValue_IntValue{IntValue: i}})
		}
		return arrayValue(values)
	case attribute.FLOAT64SLICE:
		var values []*commonv1.AnyValue
		for _, f := range v.AsFloat64Slice() {
			values = append(values, &commonv1.AnyValue{Value: &commonv1.AnyValue_DoubleValue{DoubleValue: f}})
		}
		return arrayValue(values)
	case attribute.STRINGSLICE:
		var values []*commonv1.AnyValue
		for _, s := range v.AsStringSlice() {
			values = append(values, &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: s}})
		}
		return arrayValue(values)
	default:
		return &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: v.Emit()}}
	}
}

func arrayValue(values []*commonv1.AnyValue) *commonv1.AnyValue {
	return &commonv1.AnyValue{Value: &commonv1.AnyValue_ArrayValue{ArrayValue: &commonv1.ArrayValue{Values: values}}}
}

func scopeToProto(s instrumentation.Scope) *commonv1.InstrumentationScope {
	return &commonv1.InstrumentationScope{
		Name:       s.Name,
		Version:    s.Version,
		Attributes: keyValues(s.Attributes.ToSlice()),
	}
}

func resourceToProto(r *resource.Resource) *resourcev1.Resource {
	if r == nil {
		return &resourcev1.Resource{}
	}
	return &resourcev1.Resource{Attributes: keyValues(r.Attributes())}
}

// batchToProto groups entries by resource and scope while keeping the FIFO
// order of spans inside each group.
func batchToProto(entries []Entry) []*tracev1.ResourceSpans {
	var out []*tracev1.ResourceSpans
	byResource := make(map[*resource.Resource]*tracev1.ResourceSpans)
	byScope := make(map[*resource.Resource]map[instrumentation.Scope]*tracev1.ScopeSpans)

	for _, e := range entries {
		rs, ok := byResource[e.Resource]
		if !ok {
			rs = &tracev1.ResourceSpans{Resource: resourceToProto(e.Resource)}
			if e.Resource != nil {
				rs.SchemaUrl = e.Resource.SchemaURL()
			}
			byResource[e.Resource] = rs
			byScope[e.Resource] = make(map[instrumentation.Scope]*tracev1.ScopeSpans)
			out = append(out, rs)
		}
		ss, ok := byScope[e.Resource][e.Scope]
		if !ok {
			ss = &tracev1.ScopeSpans{Scope: scopeToProto(e.Scope), SchemaUrl: e.Scope.SchemaURL}
			byScope[e.Resource][e.Scope] = ss
			rs.ScopeSpans = append(rs.ScopeSpans, ss)
		}
		ss.Spans = append(ss.Spans, e.Span)
	}
	return out
}

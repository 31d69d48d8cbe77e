// Package tracecontext encodes and decodes the trace context persisted on
// control plane objects.
//
// # Encoding
//
// A TraceContext is encoded as a W3C traceparent value, optionally followed by
// a '.' and the unpadded base64url encoding of the W3C tracestate header:
//
//	00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//	00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01.Y29uZ289dDYxcmNXa2dNekU
//
// The value is ASCII and whitespace free, so the same string is valid as an
// HTTP header value and as an object annotation value. Only version 00 is
// understood; any other version, truncated input, bad hex or base64, or an
// all-zero identifier is reported as ErrMalformedContext.
//
// # Annotation
//
// The encoded value is stored under a single annotation key whose prefix
// tracks the feature stage:
//
//	alpha.trace.lineage.io/context
//	beta.trace.lineage.io/context
//	trace.lineage.io/context
//
// All stage spellings are reserved. Only the admission mutator writes one of
// them; every other spelling is stripped on admission.
//
// # Usage
//
//	tc, err := tracecontext.FromObject(obj, tracecontext.AnnotationKey(tracecontext.StageAlpha))
//	if err != nil {
//	    // treat as no parent context
//	}
//	ctx = trace.ContextWithRemoteSpanContext(ctx, tc.SpanContext())
package tracecontext

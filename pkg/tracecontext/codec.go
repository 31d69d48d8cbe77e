package tracecontext

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// ErrMalformedContext is returned when an encoded trace context cannot be
// decoded. Callers treat it as "no parent context".
var ErrMalformedContext = errors.New("malformed trace context")

const (
	// Version is the only encoding version understood by this package.
	Version = "00"

	// TraceParentHeader is the W3C header carrying identifiers and flags.
	TraceParentHeader = "traceparent"

	// TraceStateHeader is the W3C header carrying vendor state.
	TraceStateHeader = "tracestate"

	// traceParentLen is len("00-") + 32 + 1 + 16 + 1 + 2.
	traceParentLen = 55

	stateSeparator = '.'
)

var stateEncoding = base64.RawURLEncoding

// Encode returns the encoded form of tc. The result for an invalid context is
// still well formed but will not decode.
func Encode(tc TraceContext) string {
	traceparent, tracestate := EncodeHeaders(tc)
	if tracestate == "" {
		return traceparent
	}
	return traceparent + string(stateSeparator) + stateEncoding.EncodeToString([]byte(tracestate))
}

// Decode parses an encoded trace context. Errors wrap ErrMalformedContext.
func Decode(s string) (TraceContext, error) {
	if len(s) < traceParentLen {
		return TraceContext{}, malformed("truncated value (%d bytes)", len(s))
	}

	traceparent := s[:traceParentLen]
	var tracestate string
	if rest := s[traceParentLen:]; rest != "" {
		if rest[0] != stateSeparator || len(rest) == 1 {
			return TraceContext{}, malformed("unexpected trailing data after traceparent")
		}
		raw, err := stateEncoding.DecodeString(rest[1:])
		if err != nil {
			return TraceContext{}, malformed("invalid tracestate encoding: %v", err)
		}
		tracestate = string(raw)
	}

	return DecodeHeaders(traceparent, tracestate)
}

// EncodeHeaders returns the traceparent and tracestate header values for tc.
// tracestate is empty when tc carries no vendor state.
func EncodeHeaders(tc TraceContext) (traceparent, tracestate string) {
	var b strings.Builder
	b.Grow(traceParentLen)
	b.WriteString(Version)
	b.WriteByte('-')
	b.WriteString(tc.TraceID.String())
	b.WriteByte('-')
	b.WriteString(tc.SpanID.String())
	b.WriteByte('-')
	b.WriteString(tc.Flags().String())
	return b.String(), tc.TraceState.String()
}

// DecodeHeaders parses W3C traceparent and tracestate header values. An empty
// tracestate is allowed.
func DecodeHeaders(traceparent, tracestate string) (TraceContext, error) {
	if len(traceparent) != traceParentLen {
		return TraceContext{}, malformed("traceparent must be %d bytes, got %d", traceParentLen, len(traceparent))
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return TraceContext{}, malformed("traceparent must have 4 fields")
	}
	if parts[0] != Version {
		return TraceContext{}, malformed("unsupported version %q", parts[0])
	}

	var tc TraceContext
	if err := decodeHex(parts[1], tc.TraceID[:]); err != nil {
		return TraceContext{}, malformed("trace id: %v", err)
	}
	if err := decodeHex(parts[2], tc.SpanID[:]); err != nil {
		return TraceContext{}, malformed("span id: %v", err)
	}
	var flags [1]byte
	if err := decodeHex(parts[3], flags[:]); err != nil {
		return TraceContext{}, malformed("trace flags: %v", err)
	}
	if !tc.TraceID.IsValid() {
		return TraceContext{}, malformed("trace id is all zeros")
	}
	if !tc.SpanID.IsValid() {
		return TraceContext{}, malformed("span id is all zeros")
	}
	tc.Sampled = trace.TraceFlags(flags[0]).IsSampled()

	if tracestate != "" {
		ts, err := trace.ParseTraceState(tracestate)
		if err != nil {
			return TraceContext{}, malformed("tracestate: %v", err)
		}
		tc.TraceState = ts
	}

	return tc, nil
}

// decodeHex decodes lowercase hex into dst, requiring an exact fit.
func decodeHex(s string, dst []byte) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("expected %d hex digits, got %d", hex.EncodedLen(len(dst)), len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("invalid hex digit %q", c)
		}
	}
	_, err := hex.Decode(dst, []byte(s))
	return err
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedContext, fmt.Sprintf(format, args...))
}

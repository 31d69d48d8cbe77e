package admission

import (
	"math/rand/v2"
	"testing"

	"mercator-hq/lineage/pkg/tracecontext"

	"go.opentelemetry.io/otel/trace"
)

// spanContext builds a remote span context whose IDs are filled with the
// given bytes.
func spanContext(traceByte, spanByte byte, sampled bool) trace.SpanContext {
	var tid trace.TraceID
	var sid trace.SpanID
	for i := range tid {
		tid[i] = traceByte
	}
	for i := range sid {
		sid[i] = spanByte
	}
	var flags trace.TraceFlags
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: flags.WithSampled(sampled),
		Remote:     true,
	})
}

func encoded(sc trace.SpanContext) string {
	return tracecontext.Encode(tracecontext.FromSpanContext(sc))
}

func decoded(t *testing.T, s string) tracecontext.TraceContext {
	t.Helper()
	tc, err := tracecontext.Decode(s)
	if err != nil {
		t.Fatalf("Decode(%q) error = %v", s, err)
	}
	return tc
}

// TestMutateDecisionTable tests every row of the decision table
func TestMutateDecisionTable(t *testing.T) {
	a1 := spanContext(0xa1, 0x01, true)
	a2 := spanContext(0xa1, 0x02, false)
	a2Sampled := spanContext(0xa1, 0x02, true)
	a1Unsampled := spanContext(0xa1, 0x01, false)
	b := spanContext(0xb2, 0x03, false)

	tests := []struct {
		name        string
		in          Input
		wantOutcome Outcome
		wantWrite   bool
		wantValue   string
		wantLink    bool
		wantReject  bool
	}{
		{
			name:        "absent existing and absent incoming",
			in:          Input{},
			wantOutcome: OutcomeNone,
		},
		{
			name:        "absent existing writes incoming",
			in:          Input{Incoming: a1},
			wantOutcome: OutcomeWritten,
			wantWrite:   true,
			wantValue:   encoded(a1),
		},
		{
			name:        "existing kept without incoming",
			in:          Input{Existing: encoded(a1), HasExisting: true},
			wantOutcome: OutcomeRetained,
			wantWrite:   true,
			wantValue:   encoded(a1),
		},
		{
			name:        "same trace preserves existing",
			in:          Input{Existing: encoded(a1), HasExisting: true, Incoming: a2},
			wantOutcome: OutcomePreserved,
			wantWrite:   true,
			wantValue:   encoded(a1),
		},
		{
			name:        "same trace upgrades sampled",
			in:          Input{Existing: encoded(a1Unsampled), HasExisting: true, Incoming: a2Sampled},
			wantOutcome: OutcomePreserved,
			wantWrite:   true,
			wantValue:   encoded(a1),
		},
		{
			name:        "different trace overwrites and links",
			in:          Input{Existing: encoded(a1), HasExisting: true, Incoming: b},
			wantOutcome: OutcomeOverwritten,
			wantWrite:   true,
			wantValue:   encoded(spanContext(0xb2, 0x03, true)),
			wantLink:    true,
		},
		{
			name:        "malformed existing counts as absent",
			in:          Input{Existing: "garbage", HasExisting: true, Incoming: b},
			wantOutcome: OutcomeWritten,
			wantWrite:   true,
			wantValue:   encoded(b),
		},
		{
			name:        "malformed existing without incoming is removed",
			in:          Input{Existing: "garbage", HasExisting: true},
			wantOutcome: OutcomeNone,
		},
		{
			name:        "requested value on create is rejected",
			in:          Input{Incoming: a1, Requested: encoded(b), HasRequested: true},
			wantOutcome: OutcomeWritten,
			wantWrite:   true,
			wantValue:   encoded(a1),
			wantReject:  true,
		},
		{
			name:        "requested change on update is rejected",
			in:          Input{Existing: encoded(a1), HasExisting: true, Requested: encoded(b), HasRequested: true},
			wantOutcome: OutcomeRetained,
			wantWrite:   true,
			wantValue:   encoded(a1),
			wantReject:  true,
		},
		{
			name:        "unchanged copy of existing is not rejected",
			in:          Input{Existing: encoded(a1), HasExisting: true, Requested: encoded(a1), HasRequested: true, Incoming: a2},
			wantOutcome: OutcomePreserved,
			wantWrite:   true,
			wantValue:   encoded(a1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Mutate(tt.in)

			if d.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", d.Outcome, tt.wantOutcome)
			}
			if d.Write != tt.wantWrite {
				t.Errorf("Write = %v, want %v", d.Write, tt.wantWrite)
			}
			if tt.wantWrite && d.Annotation != tt.wantValue {
				t.Errorf("Annotation = %q, want %q", d.Annotation, tt.wantValue)
			}
			if (d.Link != nil) != tt.wantLink {
				t.Errorf("Link = %+v, want link %v", d.Link, tt.wantLink)
			}
			if d.Rejected != tt.wantReject {
				t.Errorf("Rejected = %v, want %v", d.Rejected, tt.wantReject)
			}
		})
	}
}

// TestMutateLink tests that an overwrite links back to the replaced context
func TestMutateLink(t *testing.T) {
	existing := spanContext(0x11, 0x22, true)
	incoming := spanContext(0x33, 0x44, false)

	d := Mutate(Input{Existing: encoded(existing), HasExisting: true, Incoming: incoming})
	if d.Link == nil {
		t.Fatal("Link = nil, want link to the replaced context")
	}
	if d.Link.TraceID != existing.TraceID() || d.Link.SpanID != existing.SpanID() {
		t.Errorf("Link = %s/%s, want %s/%s",
			d.Link.TraceID, d.Link.SpanID, existing.TraceID(), existing.SpanID())
	}
	if !d.Link.Sampled {
		t.Error("Link.Sampled = false, want true")
	}
	if d.Link.Reason != LinkReasonOverwrite {
		t.Errorf("Link.Reason = %q, want %q", d.Link.Reason, LinkReasonOverwrite)
	}

	l := d.Link.OTel()
	if !l.SpanContext.IsRemote() || l.SpanContext.TraceID() != existing.TraceID() {
		t.Errorf("OTel().SpanContext = %+v", l.SpanContext)
	}
	if len(l.Attributes) != 1 || l.Attributes[0].Value.AsString() != LinkReasonOverwrite {
		t.Errorf("OTel().Attributes = %v", l.Attributes)
	}

	got := decoded(t, d.Annotation)
	if got.TraceID != incoming.TraceID() || got.SpanID != incoming.SpanID() {
		t.Errorf("Annotation = %s, want incoming context", got)
	}
}

// TestMutateSampledMonotonic tests that no sequence of writes clears a
// sampled annotation
func TestMutateSampledMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for run := 0; run < 200; run++ {
		var annotation string
		var has, sampled bool

		for step := 0; step < 50; step++ {
			var incoming trace.SpanContext
			if rng.IntN(5) > 0 {
				incoming = spanContext(byte(1+rng.IntN(3)), byte(1+rng.IntN(250)), rng.IntN(2) == 0)
			}

			in := Input{Existing: annotation, HasExisting: has, Incoming: incoming}
			if rng.IntN(4) == 0 {
				in.Requested = encoded(spanContext(0xee, 0xee, false))
				in.HasRequested = true
			}

			d := Mutate(in)
			if !d.Write {
				if has {
					t.Fatalf("run %d step %d: annotation removed", run, step)
				}
				continue
			}

			tc := decoded(t, d.Annotation)
			if sampled && !tc.Sampled {
				t.Fatalf("run %d step %d: sampled annotation downgraded by %s", run, step, d.Outcome)
			}
			annotation, has, sampled = d.Annotation, true, tc.Sampled
		}
	}
}

// TestMutateNeverHonoursRequested tests that the stored value is always the
// computed one
func TestMutateNeverHonoursRequested(t *testing.T) {
	requested := encoded(spanContext(0xcc, 0xcc, true))
	existing := spanContext(0x0a, 0x0b, false)

	inputs := []Input{
		{Requested: requested, HasRequested: true},
		{Incoming: existing, Requested: requested, HasRequested: true},
		{Existing: encoded(existing), HasExisting: true, Requested: requested, HasRequested: true},
		{Existing: encoded(existing), HasExisting: true, Incoming: spanContext(0x0d, 0x0e, false), Requested: requested, HasRequested: true},
	}

	for i, in := range inputs {
		d := Mutate(in)
		if !d.Rejected {
			t.Errorf("input %d: Rejected = false", i)
		}
		if d.Write && d.Annotation == requested {
			t.Errorf("input %d: requested value stored verbatim", i)
		}
	}
}

// BenchmarkMutate measures a single overwrite decision
func BenchmarkMutate(b *testing.B) {
	in := Input{
		Existing:    encoded(spanContext(0x11, 0x22, true)),
		HasExisting: true,
		Incoming:    spanContext(0x33, 0x44, false),
	}
	b.ReportAllocs()
	for b.Loop() {
		_ = Mutate(in)
	}
}

package tracecontext

import (
	"errors"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// TestAnnotationKey tests the per-stage key spelling
func TestAnnotationKey(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageAlpha, "alpha.trace.lineage.io/context"},
		{StageBeta, "beta.trace.lineage.io/context"},
		{StageGA, "trace.lineage.io/context"},
		{"", "alpha.trace.lineage.io/context"},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			if got := AnnotationKey(tt.stage); got != tt.want {
				t.Errorf("AnnotationKey(%q) = %q, want %q", tt.stage, got, tt.want)
			}
			if !IsReservedKey(AnnotationKey(tt.stage)) {
				t.Errorf("IsReservedKey(%q) = false", AnnotationKey(tt.stage))
			}
		})
	}

	if IsReservedKey("gamma.trace.lineage.io/context") {
		t.Error("IsReservedKey(gamma) = true, want false")
	}
	if got := len(ReservedKeys()); got != 3 {
		t.Errorf("len(ReservedKeys()) = %d, want 3", got)
	}
}

// TestParseStage tests stage name validation
func TestParseStage(t *testing.T) {
	for _, s := range []string{"", "alpha", "beta", "ga"} {
		if _, err := ParseStage(s); err != nil {
			t.Errorf("ParseStage(%q) error = %v", s, err)
		}
	}
	if _, err := ParseStage("stable"); err == nil {
		t.Error("ParseStage(stable) expected error")
	}
}

// TestFromObject tests decoding the annotation from object metadata
func TestFromObject(t *testing.T) {
	key := AnnotationKey(StageAlpha)

	obj := &metav1.ObjectMeta{Annotations: map[string]string{key: sampleTraceParent}}
	tc, err := FromObject(obj, key)
	if err != nil {
		t.Fatalf("FromObject() error = %v", err)
	}
	if Encode(tc) != sampleTraceParent {
		t.Errorf("FromObject() = %s, want %s", tc, sampleTraceParent)
	}

	if _, err := FromObject(&metav1.ObjectMeta{}, key); !errors.Is(err, ErrMalformedContext) {
		t.Errorf("FromObject(no annotations) error = %v, want ErrMalformedContext", err)
	}

	bad := &metav1.ObjectMeta{Annotations: map[string]string{key: "garbage"}}
	if _, err := FromObject(bad, key); !errors.Is(err, ErrMalformedContext) {
		t.Errorf("FromObject(garbage) error = %v, want ErrMalformedContext", err)
	}

	if _, ok := Lookup(nil, key); ok {
		t.Error("Lookup(nil) ok = true")
	}
}

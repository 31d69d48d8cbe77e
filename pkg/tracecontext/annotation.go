package tracecontext

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Stage selects the lifecycle prefix of the annotation key.
type Stage string

const (
	StageAlpha Stage = "alpha"
	StageBeta  Stage = "beta"
	StageGA    Stage = "ga"

	// annotationBase is the key suffix shared by every stage.
	annotationBase = "trace.lineage.io/context"
)

// DefaultStage is the stage used when none is configured.
const DefaultStage = StageAlpha

var stages = []Stage{StageAlpha, StageBeta, StageGA}

// ParseStage validates a stage name. An empty name selects DefaultStage.
func ParseStage(s string) (Stage, error) {
	if s == "" {
		return DefaultStage, nil
	}
	for _, st := range stages {
		if Stage(s) == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown annotation stage %q (valid: alpha, beta, ga)", s)
}

// AnnotationKey returns the annotation key for stage.
func AnnotationKey(stage Stage) string {
	switch stage {
	case StageGA:
		return annotationBase
	case StageAlpha, StageBeta:
		return string(stage) + "." + annotationBase
	default:
		return string(DefaultStage) + "." + annotationBase
	}
}

// ReservedKeys returns every annotation key spelling owned by the admission
// mutator.
func ReservedKeys() []string {
	keys := make([]string, 0, len(stages))
	for _, st := range stages {
		keys = append(keys, AnnotationKey(st))
	}
	return keys
}

// IsReservedKey reports whether key is one of ReservedKeys.
func IsReservedKey(key string) bool {
	for _, st := range stages {
		if key == AnnotationKey(st) {
			return true
		}
	}
	return false
}

// Lookup returns the raw annotation value under key.
func Lookup(obj metav1.Object, key string) (string, bool) {
	if obj == nil {
		return "", false
	}
	v, ok := obj.GetAnnotations()[key]
	return v, ok
}

// FromObject decodes the trace context stored on obj under key. A missing
// annotation is reported as ErrMalformedContext as well, so callers handle
// both the same way.
func FromObject(obj metav1.Object, key string) (TraceContext, error) {
	v, ok := Lookup(obj, key)
	if !ok {
		return TraceContext{}, malformed("annotation %s not present", key)
	}
	return Decode(v)
}

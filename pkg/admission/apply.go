package admission

import (
	"mercator-hq/lineage/pkg/tracecontext"

	"go.opentelemetry.io/otel/trace"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Apply decides the annotation for a write of newObj over oldObj and edits
// newObj accordingly. oldObj is nil on create.
//
// Every reserved key is removed from newObj before the decision is written
// back under key, so a stage change also migrates the stored value to the
// new key. oldObj is never modified.
func Apply(oldObj, newObj metav1.Object, incoming trace.SpanContext, key string) Decision {
	in := Input{Incoming: incoming}
	in.Existing, in.HasExisting = reservedAnnotation(oldObj, key)
	in.Requested, in.HasRequested = reservedAnnotation(newObj, key)

	d := Mutate(in)

	annotations := make(map[string]string, len(newObj.GetAnnotations())+1)
	for k, v := range newObj.GetAnnotations() {
		if !tracecontext.IsReservedKey(k) {
			annotations[k] = v
		}
	}
	if d.Write {
		annotations[key] = d.Annotation
	}
	if len(annotations) == 0 {
		annotations = nil
	}
	newObj.SetAnnotations(annotations)

	return d
}

// reservedAnnotation returns the value stored under key, or else under the
// first other reserved key present.
func reservedAnnotation(obj metav1.Object, key string) (string, bool) {
	if obj == nil {
		return "", false
	}
	if v, ok := tracecontext.Lookup(obj, key); ok {
		return v, true
	}
	for _, k := range tracecontext.ReservedKeys() {
		if v, ok := tracecontext.Lookup(obj, k); ok {
			return v, true
		}
	}
	return "", false
}

// Package admission decides the trace-context annotation of an object on
// every write.
//
// The mutator is the only writer of the annotation. Mutate is a pure
// function of three values: the annotation already stored, the trace
// context of the incoming request, and whatever value the request body
// tried to set. It never performs I/O and holds no state, so it can run
// in the synchronous path of every write.
//
// # Decision Table
//
//	existing      incoming           outcome
//	absent        absent             none: no annotation
//	absent        present            written: annotation = incoming
//	present       absent             retained: annotation unchanged
//	present (T1)  present (T1)       preserved: existing kept, sampled OR-ed
//	present (T1)  present (T2)       overwritten: annotation = incoming,
//	                                 Link back to (T1, existing span)
//
// A malformed existing value counts as absent. A value supplied by the
// request is never honoured: it is replaced by the computed value and the
// decision is marked Rejected.
//
// Apply runs Mutate against a pair of Kubernetes objects and edits the new
// one in place. The webhook subpackage serves it as a mutating admission
// webhook.
package admission

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sync/atomic"
	"time"

	"mercator-hq/lineage/pkg/admission"
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/logging"
	"mercator-hq/lineage/pkg/telemetry/tracing"
	"mercator-hq/lineage/pkg/tracecontext"

	"github.com/wI2L/jsondiff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/runtime/serializer"
)

// SpanName is the name of the span recorded for each mutated write.
const SpanName = "admission.mutate"

// maxReviewBytes bounds the request body. A review carries the object and
// its previous version, each limited to 1.5MiB by etcd.
const maxReviewBytes = 6 << 20

var (
	runtimeScheme = runtime.NewScheme()
	codecs        = serializer.NewCodecFactory(runtimeScheme)
	deserializer  = codecs.UniversalDeserializer()
)

func init() {
	_ = admissionv1.AddToScheme(runtimeScheme)
}

// Recorder receives per-request admission measurements.
type Recorder interface {
	RecordAdmission(kind, operation string, outcome admission.Outcome, rejected bool, duration time.Duration)
	RecordAdmissionError(kind, reason string)
}

// Config configures a Webhook.
type Config struct {
	// Stage selects the annotation key. Empty uses the default stage.
	Stage tracecontext.Stage

	// TracedKinds lists the kinds that are mutated. Empty mutates every kind.
	TracedKinds []string

	// WarnOnRejected returns an admission warning when a request set the
	// annotation itself.
	WarnOnRejected bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Recorder is optional.
	Recorder Recorder
}

type settings struct {
	key            string
	kinds          *admission.KindSet
	warnOnRejected bool
}

// Webhook serves admission.k8s.io/v1 AdmissionReview requests for a
// mutating webhook and writes the trace-context annotation of every traced
// object. It never denies a request.
type Webhook struct {
	settings atomic.Pointer[settings]
	logger   *slog.Logger
	recorder Recorder
}

// New creates a Webhook.
func New(cfg Config) (*Webhook, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &Webhook{
		logger:   logger.With("component", "admission.webhook"),
		recorder: cfg.Recorder,
	}
	if err := w.update(cfg.Stage, cfg.TracedKinds, cfg.WarnOnRejected); err != nil {
		return nil, err
	}
	return w, nil
}

// NewFromConfig creates a Webhook from the admission section.
func NewFromConfig(cfg *config.AdmissionConfig, logger *slog.Logger, recorder Recorder) (*Webhook, error) {
	stage, err := tracecontext.ParseStage(cfg.Stage)
	if err != nil {
		return nil, err
	}
	return New(Config{
		Stage:          stage,
		TracedKinds:    cfg.TracedKinds,
		WarnOnRejected: cfg.WarnOnRejected,
		Logger:         logger,
		Recorder:       recorder,
	})
}

// Update applies a reloaded admission section. Requests in flight finish
// with the settings they started with.
func (w *Webhook) Update(cfg *config.AdmissionConfig) error {
	stage, err := tracecontext.ParseStage(cfg.Stage)
	if err != nil {
		return err
	}
	return w.update(stage, cfg.TracedKinds, cfg.WarnOnRejected)
}

func (w *Webhook) update(stage tracecontext.Stage, kinds []string, warn bool) error {
	set, err := admission.ParseKinds(kinds)
	if err != nil {
		return err
	}
	w.settings.Store(&settings{
		key:            tracecontext.AnnotationKey(stage),
		kinds:          set,
		warnOnRejected: warn,
	})
	return nil
}

// AnnotationKey returns the annotation key currently written.
func (w *Webhook) AnnotationKey() string {
	return w.settings.Load().key
}

// ServeHTTP decodes an AdmissionReview, answers it, and writes the review
// back. The trace context of the call is read from the W3C headers.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		w.logger.Error("Unsupported content type", "content_type", r.Header.Get("Content-Type"))
		http.Error(rw, "invalid Content-Type, expect application/json", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxReviewBytes+1))
	if err != nil {
		http.Error(rw, "could not read body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(rw, "empty body", http.StatusBadRequest)
		return
	}
	if len(body) > maxReviewBytes {
		http.Error(rw, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	review := admissionv1.AdmissionReview{}
	if _, _, err := deserializer.Decode(body, nil, &review); err != nil {
		w.logger.Error("Can't decode admission review", "error", err)
		http.Error(rw, fmt.Sprintf("could not decode admission review: %v", err), http.StatusBadRequest)
		return
	}
	if review.Request == nil {
		http.Error(rw, "admission review has no request", http.StatusBadRequest)
		return
	}

	ctx := tracing.Extract(r.Context(), r.Header)

	out := admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			APIVersion: admissionv1.SchemeGroupVersion.String(),
			Kind:       "AdmissionReview",
		},
		Response: w.Review(ctx, review.Request),
	}

	resp, err := json.Marshal(out)
	if err != nil {
		w.logger.Error("Can't encode admission response", "error", err)
		http.Error(rw, fmt.Sprintf("could not encode response: %v", err), http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	if _, err := rw.Write(resp); err != nil {
		w.logger.Error("Can't write admission response", "error", err)
	}
}

// Review answers one admission request. The request is always allowed; for
// traced kinds the response carries a JSON patch setting the annotation.
// The trace context of the writer is taken from ctx.
func (w *Webhook) Review(ctx context.Context, req *admissionv1.AdmissionRequest) *admissionv1.AdmissionResponse {
	start := time.Now()
	resp := &admissionv1.AdmissionResponse{UID: req.UID, Allowed: true}

	if req.Operation != admissionv1.Create && req.Operation != admissionv1.Update {
		return resp
	}
	if req.SubResource != "" {
		return resp
	}

	s := w.settings.Load()
	gvk := schema.GroupVersionKind{Group: req.Kind.Group, Version: req.Kind.Version, Kind: req.Kind.Kind}
	if !s.kinds.Matches(gvk) {
		return resp
	}

	ctx = logging.WithRequestID(ctx, string(req.UID))
	ctx = logging.WithObject(ctx, req.Kind.Kind, req.Namespace, req.Name)
	ctx = logging.WithOperation(ctx, string(req.Operation))

	incoming := trace.SpanContextFromContext(ctx)

	span := trace.SpanFromContext(context.Background())
	if incoming.IsValid() {
		ctx, span = tracing.StartSpan(ctx, SpanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String(tracing.AttrAdmissionOperation, string(req.Operation))),
		)
		defer span.End()
	}

	d, patch, err := w.mutate(req, incoming, s.key)
	if err != nil {
		w.logger.ErrorContext(ctx, "Admission mutation failed, allowing write unchanged", "error", err)
		tracing.SetErrorAttributes(span, err, "mutate")
		if w.recorder != nil {
			w.recorder.RecordAdmissionError(req.Kind.Kind, errorReason(err))
		}
		return resp
	}

	if len(patch) > 0 {
		pt := admissionv1.PatchTypeJSONPatch
		resp.Patch = patch
		resp.PatchType = &pt
	}
	if d.Rejected && s.warnOnRejected {
		resp.Warnings = append(resp.Warnings,
			fmt.Sprintf("metadata.annotations[%s]: %v; the supplied value was replaced", s.key, admission.ErrWriteRejected))
	}

	if d.Link != nil {
		span.AddLink(d.Link.OTel())
	}
	span.SetAttributes(
		attribute.String(tracing.AttrAdmissionOutcome, string(d.Outcome)),
		attribute.Bool(tracing.AttrAdmissionRejected, d.Rejected),
		attribute.String(tracing.AttrObjectKind, req.Kind.Kind),
		attribute.String(tracing.AttrObjectName, req.Name),
	)
	if req.Namespace != "" {
		span.SetAttributes(attribute.String(tracing.AttrObjectNamespace, req.Namespace))
	}

	if d.ExistingMalformed {
		w.logger.WarnContext(ctx, "Stored trace context is malformed, treating it as absent")
	}
	if d.Rejected {
		w.logger.InfoContext(ctx, "Request set the trace context annotation, value replaced")
	}
	w.logger.DebugContext(ctx, "Admission decided",
		"outcome", d.Outcome,
		"linked", d.Link != nil,
		"patch_bytes", len(patch),
	)

	if w.recorder != nil {
		w.recorder.RecordAdmission(req.Kind.Kind, string(req.Operation), d.Outcome, d.Rejected, time.Since(start))
	}
	return resp
}

var (
	errDecodeObject = errors.New("failed to decode object")
	errEncodeObject = errors.New("failed to encode object")
	errBuildPatch   = errors.New("failed to build patch")
)

func errorReason(err error) string {
	switch {
	case errors.Is(err, errDecodeObject):
		return "decode_object"
	case errors.Is(err, errEncodeObject):
		return "encode_object"
	case errors.Is(err, errBuildPatch):
		return "build_patch"
	default:
		return "unknown"
	}
}

// mutate runs the mutator over the objects of req and returns the JSON
// patch turning the submitted object into the mutated one.
func (w *Webhook) mutate(req *admissionv1.AdmissionRequest, incoming trace.SpanContext, key string) (admission.Decision, []byte, error) {
	newObj := &unstructured.Unstructured{}
	if err := newObj.UnmarshalJSON(req.Object.Raw); err != nil {
		return admission.Decision{}, nil, fmt.Errorf("%w: %v", errDecodeObject, err)
	}

	var oldObj metav1.Object
	if req.Operation == admissionv1.Update && len(req.OldObject.Raw) > 0 {
		old := &unstructured.Unstructured{}
		if err := old.UnmarshalJSON(req.OldObject.Raw); err != nil {
			return admission.Decision{}, nil, fmt.Errorf("%w: old object: %v", errDecodeObject, err)
		}
		oldObj = old
	}

	mutated := newObj.DeepCopy()
	d := admission.Apply(oldObj, mutated, incoming, key)

	target, err := mutated.MarshalJSON()
	if err != nil {
		return d, nil, fmt.Errorf("%w: %v", errEncodeObject, err)
	}
	ops, err := jsondiff.CompareJSON(req.Object.Raw, target)
	if err != nil {
		return d, nil, fmt.Errorf("%w: %v", errBuildPatch, err)
	}
	if len(ops) == 0 {
		return d, nil, nil
	}
	patch, err := json.Marshal(ops)
	if err != nil {
		return d, nil, fmt.Errorf("%w: %v", errBuildPatch, err)
	}
	return d, patch, nil
}

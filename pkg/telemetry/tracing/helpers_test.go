package tracing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/exporter"
	"mercator-hq/lineage/pkg/tracecontext"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordingCollector hands out clients that keep every uploaded span.
type recordingCollector struct {
	mu    sync.Mutex
	spans []*tracev1.Span
	res   []*tracev1.ResourceSpans
}

func (c *recordingCollector) factory() exporter.ClientFactory {
	return func() otlptrace.Client { return &recordingClient{c: c} }
}

func (c *recordingCollector) received() []*tracev1.Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*tracev1.Span(nil), c.spans...)
}

func (c *recordingCollector) resources() []*tracev1.ResourceSpans {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*tracev1.ResourceSpans(nil), c.res...)
}

type recordingClient struct {
	c *recordingCollector
}

func (r *recordingClient) Start(context.Context) error { return nil }
func (r *recordingClient) Stop(context.Context) error  { return nil }

func (r *recordingClient) UploadTraces(_ context.Context, rs []*tracev1.ResourceSpans) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.res = append(r.c.res, rs...)
	for _, res := range rs {
		for _, ss := range res.ScopeSpans {
			r.c.spans = append(r.c.spans, ss.Spans...)
		}
	}
	return nil
}

func testTracingConfig(sampler string) *config.TracingConfig {
	cfg := config.NewDefaultConfig().Telemetry.Tracing
	cfg.Sampler = sampler
	return &cfg
}

func testExportConfig() *config.ExporterConfig {
	cfg := config.NewDefaultConfig().Exporter
	cfg.BatchTimeout = 10 * time.Millisecond
	cfg.RetryInterval = 10 * time.Millisecond
	cfg.StatsSchedule = ""
	return &cfg
}

// newTestExporter returns a started exporter feeding a recording collector.
func newTestExporter(t *testing.T, sampler string) (*Exporter, *recordingCollector) {
	t.Helper()
	collector := &recordingCollector{}
	e, err := NewExporter(Config{
		ServiceName: "test-service",
		Tracing:     testTracingConfig(sampler),
		Export:      testExportConfig(),
		NewClient:   collector.factory(),
		Logger:      discardLogger,
	})
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e, collector
}

func mustNewSampled(t testing.TB) tracecontext.TraceContext {
	t.Helper()
	tc, err := tracecontext.NewSampled()
	if err != nil {
		t.Fatalf("NewSampled() error = %v", err)
	}
	return tc
}

func annotatedObject(key, value string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion("apps/v1")
	obj.SetKind("Deployment")
	obj.SetNamespace("default")
	obj.SetName("web")
	obj.SetUID("2f0b8c5e-1d3a-4c55-9d8e-6b7f1a2c3d4e")
	if key != "" {
		obj.SetAnnotations(map[string]string{key: value})
	}
	return obj
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func resetProcessExporter(t *testing.T) {
	t.Helper()
	processMu.Lock()
	e := processExporter
	processExporter = nil
	processMu.Unlock()
	if e != nil {
		_ = e.Shutdown(context.Background())
	}
}

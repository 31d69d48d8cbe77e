package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/lineage/pkg/admission"
	"mercator-hq/lineage/pkg/admission/webhook"
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/exporter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ webhook.Recorder = (*Collector)(nil)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:        true,
		Namespace:      "test",
		Subsystem:      "lineage",
		LatencyBuckets: []float64{0.0001, 0.001, 0.01},
	}
}

// TestCollector_NewCollector tests collector creation
func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}

	defaults := &config.MetricsConfig{Enabled: true}
	NewCollector(defaults, nil)
	if defaults.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("Namespace = %q, want default", defaults.Namespace)
	}
	if len(defaults.LatencyBuckets) == 0 {
		t.Error("LatencyBuckets not defaulted")
	}
}

// TestCollector_RecordAdmission tests admission decision recording
func TestCollector_RecordAdmission(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	tests := []struct {
		name      string
		kind      string
		operation string
		outcome   admission.Outcome
		rejected  bool
	}{
		{"written", "Deployment", "CREATE", admission.OutcomeWritten, false},
		{"overwritten", "Deployment", "UPDATE", admission.OutcomeOverwritten, false},
		{"rejected create", "ConfigMap", "CREATE", admission.OutcomeNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector.RecordAdmission(tt.kind, tt.operation, tt.outcome, tt.rejected, 200*time.Microsecond)

			count := testutil.ToFloat64(collector.admissionMetrics.requestsTotal.WithLabelValues(tt.kind, tt.operation, string(tt.outcome)))
			if count != 1 {
				t.Errorf("Expected 1 decision, got %f", count)
			}
		})
	}

	rejected := testutil.ToFloat64(collector.admissionMetrics.rejectedTotal.WithLabelValues("ConfigMap"))
	if rejected != 1 {
		t.Errorf("Expected 1 rejected write, got %f", rejected)
	}
	if n := testutil.CollectAndCount(collector.admissionMetrics.duration); n != 2 {
		t.Errorf("Expected 2 duration series, got %d", n)
	}
}

// TestCollector_RecordAdmissionError tests error recording
func TestCollector_RecordAdmissionError(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordAdmissionError("Secret", "decode_object")
	collector.RecordAdmissionError("Secret", "decode_object")

	count := testutil.ToFloat64(collector.admissionMetrics.errorsTotal.WithLabelValues("Secret", "decode_object"))
	if count != 2 {
		t.Errorf("Expected 2 errors, got %f", count)
	}
}

// TestCollector_RecordStoreOperation tests store operation recording
func TestCollector_RecordStoreOperation(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordStoreOperation("sqlite", "update", "conflict", time.Millisecond)

	count := testutil.ToFloat64(collector.storeMetrics.operationsTotal.WithLabelValues("sqlite", "update", "conflict"))
	if count != 1 {
		t.Errorf("Expected 1 operation, got %f", count)
	}
}

// TestCollector_RegisterExporter tests scrape-time export metrics
func TestCollector_RegisterExporter(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	stats := exporter.Stats{
		BufferedSpans: 3,
		BufferedBytes: 900,
		MaxBytes:      4096,
		Enqueued:      10,
		Dropped:       2,
		Exported:      5,
		Rejected:      1,
		Connected:     true,
	}
	collector.RegisterExporter(func() exporter.Stats { return stats })
	collector.RegisterExporter(func() exporter.Stats { return stats })

	expected := `
# HELP test_lineage_span_buffer_bytes Bytes of finished spans waiting for export
# TYPE test_lineage_span_buffer_bytes gauge
test_lineage_span_buffer_bytes 900
# HELP test_lineage_spans_dropped_total Total number of spans dropped because the buffer was full
# TYPE test_lineage_spans_dropped_total counter
test_lineage_spans_dropped_total 2
# HELP test_lineage_spans_rejected_total Total number of spans the collector rejected permanently
# TYPE test_lineage_spans_rejected_total counter
test_lineage_spans_rejected_total 1
# HELP test_lineage_span_collector_connected Whether the collector connection is up
# TYPE test_lineage_span_collector_connected gauge
test_lineage_span_collector_connected 1
`
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"test_lineage_span_buffer_bytes",
		"test_lineage_spans_dropped_total",
		"test_lineage_spans_rejected_total",
		"test_lineage_span_collector_connected",
	)
	if err != nil {
		t.Errorf("GatherAndCompare() error = %v", err)
	}

	stats.Dropped = 7
	if got := gatheredValue(t, registry, "test_lineage_spans_dropped_total"); got != 7 {
		t.Errorf("dropped after update = %f, want 7", got)
	}
}

// gatheredValue returns the value of a single-series metric.
func gatheredValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) == 1 {
			m := mf.GetMetric()[0]
			return m.GetGauge().GetValue() + m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// TestCollector_Disabled tests that a disabled collector records nothing
func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	collector.RecordAdmission("Deployment", "CREATE", admission.OutcomeWritten, false, time.Millisecond)
	collector.RecordStoreOperation("memory", "create", "ok", time.Millisecond)
	collector.RegisterExporter(func() exporter.Stats { return exporter.Stats{} })

	if n := testutil.CollectAndCount(collector.admissionMetrics.requestsTotal); n != 0 {
		t.Errorf("Expected no series, got %d", n)
	}
	families, _ := registry.Gather()
	for _, mf := range families {
		if strings.Contains(mf.GetName(), "span_") {
			t.Errorf("export metric %s registered while disabled", mf.GetName())
		}
	}
}

// TestCardinalityLimiter tests kind label capping
func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow(fmt.Sprintf("Kind%d", i)) {
			t.Errorf("Allow(Kind%d) = false within limit", i)
		}
	}
	if limiter.Allow("Kind3") {
		t.Error("Allow(Kind3) = true beyond limit")
	}
	if !limiter.Allow("Kind0") {
		t.Error("Allow(Kind0) = false for a known value")
	}
	if limiter.Count() != 3 {
		t.Errorf("Count() = %d, want 3", limiter.Count())
	}
}

// TestCollector_KindOverflow tests that kinds past the limit share a label
func TestCollector_KindOverflow(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.cardinalityLimiter = NewCardinalityLimiter(1)

	collector.RecordAdmission("Deployment", "CREATE", admission.OutcomeWritten, false, time.Millisecond)
	collector.RecordAdmission("Widget", "CREATE", admission.OutcomeWritten, false, time.Millisecond)

	count := testutil.ToFloat64(collector.admissionMetrics.requestsTotal.WithLabelValues(otherKind, "CREATE", "written"))
	if count != 1 {
		t.Errorf("Expected 1 decision under %q, got %f", otherKind, count)
	}
}

// TestCollector_Handler tests the exposition endpoint
func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordAdmission("Deployment", "UPDATE", admission.OutcomePreserved, false, time.Millisecond)

	srv := httptest.NewServer(collector.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `test_lineage_admission_requests_total{kind="Deployment",operation="UPDATE",outcome="preserved"} 1`) {
		t.Errorf("admission counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(string(body), "promhttp_metric_handler_requests_total") {
		t.Errorf("scrape counter missing from exposition:\n%s", body)
	}

	// A second handler on the same registry reuses the scrape counters.
	second := httptest.NewServer(collector.Handler())
	defer second.Close()
	resp2, err := http.Get(second.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp2.StatusCode, http.StatusOK)
	}
}

// TestCollector_ConcurrentRecording tests thread-safety
func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				collector.RecordAdmission("Deployment", "UPDATE", admission.OutcomePreserved, false, time.Microsecond)
				collector.RecordStoreOperation("memory", "update", "ok", time.Microsecond)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	count := testutil.ToFloat64(collector.admissionMetrics.requestsTotal.WithLabelValues("Deployment", "UPDATE", "preserved"))
	if count != 1000 {
		t.Errorf("Expected 1000 decisions, got %f", count)
	}
}

func Benchmark_Collector_RecordAdmission(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	b.ReportAllocs()
	for b.Loop() {
		collector.RecordAdmission("Deployment", "UPDATE", admission.OutcomeOverwritten, false, time.Microsecond)
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/lineage/pkg/admission/webhook"
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/health"

	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testWebhookConfig() *config.WebhookConfig {
	cfg := config.NewDefaultConfig().Webhook
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return &cfg
}

func newTestServer(t *testing.T, handler http.Handler, checker *health.Checker) *Server {
	t.Helper()

	s, err := NewServer(testWebhookConfig(), Options{
		Webhook: handler,
		Health:  checker,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "lineage_admission_requests_total 1\n")
		}),
		Version: "1.2.3",
		Commit:  "abc123",
		Logger:  discardLogger,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

// TestNewServer_RequiresWebhook tests that a server cannot be built without
// the webhook handler.
func TestNewServer_RequiresWebhook(t *testing.T) {
	if _, err := NewServer(testWebhookConfig(), Options{}); err == nil {
		t.Fatal("NewServer() error = nil, want error")
	}
}

// TestServer_Routes tests the routes mounted next to the webhook.
func TestServer_Routes(t *testing.T) {
	called := false
	wh := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	checker := health.New(time.Second)
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })
	handler := newTestServer(t, wh, checker).Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"mutate", http.MethodPost, "/mutate", http.StatusOK, ""},
		{"liveness", http.MethodGet, "/healthz", http.StatusOK, `"status":"ok"`},
		{"readiness", http.MethodGet, "/readyz", http.StatusOK, `"status":"ready"`},
		{"version", http.MethodGet, "/version", http.StatusOK, `"version":"1.2.3"`},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "lineage_admission_requests_total"},
		{"unknown", http.MethodGet, "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}

	if !called {
		t.Error("webhook handler was not called for /mutate")
	}
}

// TestServer_CustomPaths tests that configured paths replace the defaults.
func TestServer_CustomPaths(t *testing.T) {
	cfg := testWebhookConfig()
	cfg.MutatePath = "/admit"

	s, err := NewServer(cfg, Options{
		Webhook:      http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		Health:       health.New(time.Second),
		HealthConfig: &config.HealthConfig{LivenessPath: "/live", ReadinessPath: "/ready"},
		Metrics:      http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		MetricsPath:  "/prom",
		Logger:       discardLogger,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	for _, path := range []string{"/admit", "/live", "/ready", "/prom"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /healthz status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// TestServer_RequestID tests that the request ID is echoed or generated.
func TestServer_RequestID(t *testing.T) {
	handler := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), nil).Handler()

	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{"echoed", "req-42", true},
		{"generated", "", false},
		{"too long", strings.Repeat("x", 129), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got == "" {
				t.Fatal("response has no request ID")
			}
			if (got == tt.incoming) != tt.wantSame {
				t.Errorf("request ID = %q, incoming %q, wantSame %v", got, tt.incoming, tt.wantSame)
			}
		})
	}
}

// TestServer_Recovery tests that a panicking handler yields a 500.
func TestServer_Recovery(t *testing.T) {
	handler := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mutate", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// TestServer_ServeReview tests a full review over a real listener and a
// graceful shutdown when the context is canceled.
func TestServer_ServeReview(t *testing.T) {
	wh, err := webhook.New(webhook.Config{Logger: discardLogger})
	if err != nil {
		t.Fatalf("webhook.New() error = %v", err)
	}
	s := newTestServer(t, wh, health.New(time.Second))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	object, err := json.Marshal(map[string]any{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]any{"name": "settings", "namespace": "default"},
	})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	body, err := json.Marshal(admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{APIVersion: "admission.k8s.io/v1", Kind: "AdmissionReview"},
		Request: &admissionv1.AdmissionRequest{
			UID:       "7c1b0e3a-52cf-4c35-9a36-5b1f0c0d5e11",
			Kind:      metav1.GroupVersionKind{Version: "v1", Kind: "ConfigMap"},
			Name:      "settings",
			Namespace: "default",
			Operation: admissionv1.Create,
			Object:    runtime.RawExtension{Raw: object},
		},
	})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	url := "http://" + ln.Addr().String() + "/mutate"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Post(url, "application/json", bytes.NewReader(body))
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var review admissionv1.AdmissionReview
	if err := json.NewDecoder(resp.Body).Decode(&review); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if review.Response == nil || !review.Response.Allowed {
		t.Fatalf("response = %+v, want allowed", review.Response)
	}
	if review.Response.UID != "7c1b0e3a-52cf-4c35-9a36-5b1f0c0d5e11" {
		t.Errorf("response UID = %q", review.Response.UID)
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}
	if s.Addr() == nil {
		t.Error("Addr() = nil while serving")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}

// TestServer_ServeTwice tests that a running server refuses a second Serve.
func TestServer_ServeTwice(t *testing.T) {
	s := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), nil)

	ln1, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln1) }()

	deadline := time.Now().Add(2 * time.Second)
	for !s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	if err := s.Serve(context.Background(), ln2); err == nil {
		t.Error("second Serve() error = nil, want error")
	}

	cancel()
	<-done
}

// TestServer_TLSErrors tests that TLS misconfiguration fails Serve.
func TestServer_TLSErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pem")

	tests := []struct {
		name    string
		tls     config.TLSConfig
		wantErr string
	}{
		{"no cert", config.TLSConfig{Enabled: true, KeyFile: missing}, "cert file not specified"},
		{"no key", config.TLSConfig{Enabled: true, CertFile: missing}, "key file not specified"},
		{"cert missing", config.TLSConfig{Enabled: true, CertFile: missing, KeyFile: missing}, "cert file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testWebhookConfig()
			cfg.TLS = tt.tls
			s, err := NewServer(cfg, Options{
				Webhook: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
				Logger:  discardLogger,
			})
			if err != nil {
				t.Fatalf("NewServer() error = %v", err)
			}

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatalf("net.Listen() error = %v", err)
			}
			err = s.Serve(context.Background(), ln)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Serve() error = %v, want containing %q", err, tt.wantErr)
			}
			if s.IsRunning() {
				t.Error("IsRunning() = true after failed Serve")
			}
		})
	}
}

// TestServer_ShutdownNotRunning tests that Shutdown before Serve is a no-op.
func TestServer_ShutdownNotRunning(t *testing.T) {
	s := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

// TestLoggingMiddleware_Levels tests the log level chosen per response.
func TestLoggingMiddleware_Levels(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		want   string
	}{
		{"success", "/mutate", http.StatusOK, "level=INFO"},
		{"quiet", "/healthz", http.StatusOK, "level=DEBUG"},
		{"client error", "/mutate", http.StatusBadRequest, "level=WARN"},
		{"server error", "/healthz", http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			handler := LoggingMiddleware(logger, "/healthz")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

// TestRecoveryMiddleware_AbortHandler tests that http.ErrAbortHandler is
// re-raised so net/http can abort the connection.
func TestRecoveryMiddleware_AbortHandler(t *testing.T) {
	handler := RecoveryMiddleware(discardLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, http.ErrAbortHandler) {
			t.Errorf("recovered %v, want http.ErrAbortHandler", r)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

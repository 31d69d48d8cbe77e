package config

import "time"

// Config is the root configuration structure for Lineage.
// It contains the admission webhook server, the trace-context admission
// rules, the span exporter, the reference object store, and telemetry.
type Config struct {
	// Webhook contains HTTP server configuration for the admission webhook
	// including listen address, timeouts, and TLS.
	Webhook WebhookConfig `yaml:"webhook"`

	// Admission contains the trace-context admission rules: annotation stage
	// and which object kinds are traced.
	Admission AdmissionConfig `yaml:"admission"`

	// Exporter contains the span buffer and OTLP collector configuration.
	Exporter ExporterConfig `yaml:"exporter"`

	// Store contains configuration for the reference object store.
	Store StoreConfig `yaml:"store"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing, and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// WebhookConfig contains configuration for the admission webhook server.
type WebhookConfig struct {
	// ListenAddress is the address and port for the webhook to listen on.
	// Format: "host:port" (e.g., "0.0.0.0:8443").
	// Default: "0.0.0.0:8443"
	ListenAddress string `yaml:"listen_address"`

	// MutatePath is the HTTP path serving AdmissionReview requests.
	// Default: "/mutate"
	MutatePath string `yaml:"mutate_path"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// TLS contains the serving certificate. The API server only calls
	// webhooks over HTTPS.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	// Enabled controls whether TLS is enabled.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the TLS certificate file.
	// Required when Enabled is true.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the TLS private key file.
	// Required when Enabled is true.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum TLS version to accept.
	// Options: "1.2", "1.3"
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// rotation. Zero disables reloading.
	// Default: 1m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// AdmissionConfig contains trace-context admission configuration.
type AdmissionConfig struct {
	// Stage selects the annotation key prefix.
	// Options: "alpha", "beta", "ga"
	// Default: "alpha"
	Stage string `yaml:"stage"`

	// TracedKinds lists the object kinds whose trace context is managed,
	// as "group/version/Kind" (core group: "/v1/ConfigMap" or "v1/ConfigMap").
	// An empty list traces every kind.
	TracedKinds []string `yaml:"traced_kinds"`

	// WarnOnRejected adds an admission warning when a request tried to set
	// the trace-context annotation directly.
	// Default: true
	WarnOnRejected bool `yaml:"warn_on_rejected"`
}

// ExporterConfig contains span export configuration.
type ExporterConfig struct {
	// Enabled controls whether finished spans are exported. When disabled
	// spans are still created for context propagation but never leave the
	// process.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the collector connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds a single export call.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// BufferMaxBytes is the byte budget of buffered spans. When full, new
	// spans are dropped.
	// Default: 1048576 (1MiB)
	BufferMaxBytes int `yaml:"buffer_max_bytes"`

	// MaxBatchSpans caps the number of spans per export request.
	// Default: 512
	MaxBatchSpans int `yaml:"max_batch_spans"`

	// BatchTimeout is how long a partial batch waits before export.
	// Default: 5s
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// RetryInterval is the fixed delay before reconnecting to the collector
	// after a failure.
	// Default: 5m
	RetryInterval time.Duration `yaml:"retry_interval"`

	// StatsSchedule is the cron schedule for logging buffer statistics.
	// Empty disables the report.
	// Default: "@every 1m"
	StatsSchedule string `yaml:"stats_schedule"`
}

// StoreConfig contains configuration for the reference object store.
type StoreConfig struct {
	// Backend selects the store implementation.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Driver selects the database/sql driver for the sqlite backend.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file path. ":memory:" keeps it in memory.
	// Default: "data/lineage.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains span creation configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "lineage"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: ""
	Subsystem string `yaml:"subsystem"`

	// LatencyBuckets defines histogram buckets for admission latency (seconds).
	// Default: [0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05]
	LatencyBuckets []float64 `yaml:"latency_buckets"`
}

// TracingConfig contains span creation configuration.
type TracingConfig struct {
	// ServiceName is the service.name resource attribute.
	// Default: "lineage-webhook"
	ServiceName string `yaml:"service_name"`

	// Sampler determines the sampling strategy for new root traces. Child
	// spans always follow their parent's decision.
	// Options: "always", "never", "ratio"
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of root traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// MaxLinksPerSpan caps the links recorded on a single span.
	// Default: 8
	MaxLinksPerSpan int `yaml:"max_links_per_span"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/healthz"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/readyz"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

package config

import "time"

// Default values for configuration fields.
const (
	// Webhook defaults
	DefaultListenAddress   = "0.0.0.0:8443"
	DefaultMutatePath      = "/mutate"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultTLSMinVersion   = "1.2"
	DefaultTLSReload       = time.Minute

	// Admission defaults
	DefaultAdmissionStage = "alpha"
	DefaultWarnOnRejected = true

	// Exporter defaults
	DefaultExporterEnabled       = true
	DefaultExporterEndpoint      = "localhost:4317"
	DefaultExporterInsecure      = true
	DefaultExporterTimeout       = 10 * time.Second
	DefaultExporterBufferBytes   = 1 << 20 // 1MiB
	DefaultExporterMaxBatchSpans = 512
	DefaultExporterBatchTimeout  = 5 * time.Second
	DefaultExporterRetryInterval = 5 * time.Minute
	DefaultExporterStatsSchedule = "@every 1m"

	// Store defaults
	DefaultStoreBackend      = "memory"
	DefaultStoreDriver       = "sqlite"
	DefaultStorePath         = "data/lineage.db"
	DefaultStoreBusyTimeout  = 5 * time.Second
	DefaultStoreMaxOpenConns = 4

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultPrometheusPath     = "/metrics"
	DefaultMetricsNamespace   = "lineage"
	DefaultTracingServiceName = "lineage-webhook"
	DefaultTracingSampler     = "always"
	DefaultTracingSampleRatio = 1.0
	DefaultMaxLinksPerSpan    = 8
	DefaultHealthEnabled      = true
	DefaultLivenessPath       = "/healthz"
	DefaultReadinessPath      = "/readyz"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// DefaultLatencyBuckets are the admission latency histogram buckets in seconds.
var DefaultLatencyBuckets = []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05}

// NewDefaultConfig returns a configuration with every field at its default.
// Fields whose zero value means "off" are only set here, so a YAML file
// decoded on top of this value can still turn them off.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Webhook: WebhookConfig{
			TLS: TLSConfig{ReloadInterval: DefaultTLSReload},
		},
		Admission: AdmissionConfig{
			WarnOnRejected: DefaultWarnOnRejected,
		},
		Exporter: ExporterConfig{
			Enabled:       DefaultExporterEnabled,
			Insecure:      DefaultExporterInsecure,
			StatsSchedule: DefaultExporterStatsSchedule,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Health:  HealthConfig{Enabled: DefaultHealthEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Webhook defaults
	if cfg.Webhook.ListenAddress == "" {
		cfg.Webhook.ListenAddress = DefaultListenAddress
	}
	if cfg.Webhook.MutatePath == "" {
		cfg.Webhook.MutatePath = DefaultMutatePath
	}
	if cfg.Webhook.ReadTimeout == 0 {
		cfg.Webhook.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Webhook.WriteTimeout == 0 {
		cfg.Webhook.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Webhook.IdleTimeout == 0 {
		cfg.Webhook.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Webhook.ShutdownTimeout == 0 {
		cfg.Webhook.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Webhook.MaxHeaderBytes == 0 {
		cfg.Webhook.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Webhook.TLS.MinVersion == "" {
		cfg.Webhook.TLS.MinVersion = DefaultTLSMinVersion
	}

	// Admission defaults
	if cfg.Admission.Stage == "" {
		cfg.Admission.Stage = DefaultAdmissionStage
	}

	// Exporter defaults
	if cfg.Exporter.Endpoint == "" {
		cfg.Exporter.Endpoint = DefaultExporterEndpoint
	}
	if cfg.Exporter.Timeout == 0 {
		cfg.Exporter.Timeout = DefaultExporterTimeout
	}
	if cfg.Exporter.BufferMaxBytes == 0 {
		cfg.Exporter.BufferMaxBytes = DefaultExporterBufferBytes
	}
	if cfg.Exporter.MaxBatchSpans == 0 {
		cfg.Exporter.MaxBatchSpans = DefaultExporterMaxBatchSpans
	}
	if cfg.Exporter.BatchTimeout == 0 {
		cfg.Exporter.BatchTimeout = DefaultExporterBatchTimeout
	}
	if cfg.Exporter.RetryInterval == 0 {
		cfg.Exporter.RetryInterval = DefaultExporterRetryInterval
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DefaultStoreDriver
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = DefaultStoreBusyTimeout
	}
	if cfg.Store.MaxOpenConns == 0 {
		cfg.Store.MaxOpenConns = DefaultStoreMaxOpenConns
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Metrics.LatencyBuckets) == 0 {
		cfg.Metrics.LatencyBuckets = append([]float64(nil), DefaultLatencyBuckets...)
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 && cfg.Tracing.Sampler != "ratio" {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.MaxLinksPerSpan == 0 {
		cfg.Tracing.MaxLinksPerSpan = DefaultMaxLinksPerSpan
	}

	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

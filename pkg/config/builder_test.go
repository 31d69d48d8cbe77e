package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder starting from the defaults.
// The resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	return &ConfigBuilder{cfg: *NewDefaultConfig()}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the webhook listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Webhook.ListenAddress = addr
	return b
}

// WithStage sets the annotation stage.
func (b *ConfigBuilder) WithStage(stage string) *ConfigBuilder {
	b.cfg.Admission.Stage = stage
	return b
}

// WithTracedKinds sets the traced object kinds.
func (b *ConfigBuilder) WithTracedKinds(kinds ...string) *ConfigBuilder {
	b.cfg.Admission.TracedKinds = kinds
	return b
}

// WithExporter sets the collector endpoint and buffer budget.
func (b *ConfigBuilder) WithExporter(endpoint string, bufferBytes int) *ConfigBuilder {
	b.cfg.Exporter.Enabled = true
	b.cfg.Exporter.Endpoint = endpoint
	b.cfg.Exporter.BufferMaxBytes = bufferBytes
	return b
}

// WithRetryInterval sets the collector reconnect interval.
func (b *ConfigBuilder) WithRetryInterval(d time.Duration) *ConfigBuilder {
	b.cfg.Exporter.RetryInterval = d
	return b
}

// WithSQLiteStore selects the sqlite store backend.
func (b *ConfigBuilder) WithSQLiteStore(driver, path string) *ConfigBuilder {
	b.cfg.Store.Backend = "sqlite"
	b.cfg.Store.Driver = driver
	b.cfg.Store.Path = path
	return b
}

// WithLoggingLevel sets the logging level.
func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithTLS enables TLS with the given certificate files.
func (b *ConfigBuilder) WithTLS(certFile, keyFile string) *ConfigBuilder {
	b.cfg.Webhook.TLS.Enabled = true
	b.cfg.Webhook.TLS.CertFile = certFile
	b.cfg.Webhook.TLS.KeyFile = keyFile
	return b
}

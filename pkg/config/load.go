package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix of every environment override.
const envPrefix = "LINEAGE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of the defaults, remaining zero values are
// defaulted, and the result is validated. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention LINEAGE_SECTION_FIELD (e.g., LINEAGE_WEBHOOK_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Start from default values
// 2. Decode YAML from file
// 3. Apply environment variable overrides
// 4. Validate final configuration
//
// An empty path skips step 2.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path != "" {
		var err error
		if cfg, err = loadFile(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration data on top of the defaults without
// validating it.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format LINEAGE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Webhook overrides
	envString("WEBHOOK_LISTEN_ADDRESS", &cfg.Webhook.ListenAddress)
	envString("WEBHOOK_MUTATE_PATH", &cfg.Webhook.MutatePath)
	envDuration("WEBHOOK_READ_TIMEOUT", &cfg.Webhook.ReadTimeout)
	envDuration("WEBHOOK_WRITE_TIMEOUT", &cfg.Webhook.WriteTimeout)
	envDuration("WEBHOOK_SHUTDOWN_TIMEOUT", &cfg.Webhook.ShutdownTimeout)
	envBool("WEBHOOK_TLS_ENABLED", &cfg.Webhook.TLS.Enabled)
	envString("WEBHOOK_TLS_CERT_FILE", &cfg.Webhook.TLS.CertFile)
	envString("WEBHOOK_TLS_KEY_FILE", &cfg.Webhook.TLS.KeyFile)
	envDuration("WEBHOOK_TLS_RELOAD_INTERVAL", &cfg.Webhook.TLS.ReloadInterval)

	// Admission overrides
	envString("ADMISSION_STAGE", &cfg.Admission.Stage)
	if val := os.Getenv(envPrefix + "ADMISSION_TRACED_KINDS"); val != "" {
		cfg.Admission.TracedKinds = splitList(val)
	}
	envBool("ADMISSION_WARN_ON_REJECTED", &cfg.Admission.WarnOnRejected)

	// Exporter overrides
	envBool("EXPORTER_ENABLED", &cfg.Exporter.Enabled)
	envString("EXPORTER_ENDPOINT", &cfg.Exporter.Endpoint)
	envBool("EXPORTER_INSECURE", &cfg.Exporter.Insecure)
	envDuration("EXPORTER_TIMEOUT", &cfg.Exporter.Timeout)
	envInt("EXPORTER_BUFFER_MAX_BYTES", &cfg.Exporter.BufferMaxBytes)
	envInt("EXPORTER_MAX_BATCH_SPANS", &cfg.Exporter.MaxBatchSpans)
	envDuration("EXPORTER_BATCH_TIMEOUT", &cfg.Exporter.BatchTimeout)
	envDuration("EXPORTER_RETRY_INTERVAL", &cfg.Exporter.RetryInterval)
	envString("EXPORTER_STATS_SCHEDULE", &cfg.Exporter.StatsSchedule)
	if val := os.Getenv(envPrefix + "EXPORTER_HEADERS"); val != "" {
		cfg.Exporter.Headers = parseHeaders(val)
	}

	// Store overrides
	envString("STORE_BACKEND", &cfg.Store.Backend)
	envString("STORE_DRIVER", &cfg.Store.Driver)
	envString("STORE_PATH", &cfg.Store.Path)
	envDuration("STORE_BUSY_TIMEOUT", &cfg.Store.BusyTimeout)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envString("TELEMETRY_TRACING_SERVICE_NAME", &cfg.Telemetry.Tracing.ServiceName)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	if val := os.Getenv(envPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
	envInt("TELEMETRY_TRACING_MAX_LINKS_PER_SPAN", &cfg.Telemetry.Tracing.MaxLinksPerSpan)
}

func envString(name string, dst *string) {
	if val := os.Getenv(envPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(envPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(envPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(envPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// splitList splits a comma separated list and drops empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseHeaders parses "k1=v1,k2=v2", the OTEL_EXPORTER_OTLP_HEADERS format.
func parseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	for _, item := range splitList(s) {
		k, v, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers
}

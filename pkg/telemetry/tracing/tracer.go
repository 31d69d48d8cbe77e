package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/exporter"
	"mercator-hq/lineage/pkg/tracecontext"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName is the tracer name recorded as the span scope.
const instrumentationName = "mercator-hq/lineage"

// ErrServiceNameMismatch is returned by InitializeExporter when the process
// exporter already exists under a different service name.
var ErrServiceNameMismatch = errors.New("exporter already initialized with a different service name")

// Config configures an Exporter.
type Config struct {
	// ServiceName is the service.name resource attribute. Required.
	ServiceName string

	// ServiceVersion is the service.version resource attribute.
	ServiceVersion string

	// Tracing selects the sampler and span limits. Nil uses the defaults.
	Tracing *config.TracingConfig

	// Export configures the span buffer and collector. Nil uses the defaults.
	Export *config.ExporterConfig

	// NewClient overrides the OTLP/gRPC client built from Export.
	NewClient exporter.ClientFactory

	// Logger receives export diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Exporter is the explicit tracing handle of a process: a TracerProvider
// whose only span processor feeds a bounded span buffer drained to the
// collector. Thread it to call sites with ContextWithExporter.
type Exporter struct {
	serviceName string
	provider    *sdktrace.TracerProvider
	tracer      trace.Tracer
	spans       *exporter.Exporter
	reporter    *exporter.Reporter

	startOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

// NewExporter builds an Exporter. Spans are buffered but nothing is sent
// until Start is called.
//
// When export is disabled spans are still created, so trace contexts keep
// propagating, but they never leave the process.
func NewExporter(cfg Config) (*Exporter, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	tracingCfg := cfg.Tracing
	if tracingCfg == nil {
		tracingCfg = &config.NewDefaultConfig().Telemetry.Tracing
	}
	exportCfg := cfg.Export
	if exportCfg == nil {
		exportCfg = &config.NewDefaultConfig().Exporter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sampler, err := createSampler(tracingCfg.Sampler, tracingCfg.SampleRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	limits := sdktrace.NewSpanLimits()
	if tracingCfg.MaxLinksPerSpan > 0 {
		limits.LinkCountLimit = tracingCfg.MaxLinksPerSpan
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithSpanLimits(limits),
	}

	e := &Exporter{serviceName: cfg.ServiceName}

	if exportCfg.Enabled {
		newClient := cfg.NewClient
		if newClient == nil {
			newClient = exporter.NewGRPCClientFactory(exporter.GRPCOptions{
				Endpoint: exportCfg.Endpoint,
				Insecure: exportCfg.Insecure,
				Headers:  exportCfg.Headers,
				Timeout:  exportCfg.Timeout,
			})
		}

		e.spans, err = exporter.New(exporter.Config{
			NewClient:      newClient,
			BufferMaxBytes: exportCfg.BufferMaxBytes,
			MaxBatchSpans:  exportCfg.MaxBatchSpans,
			BatchTimeout:   exportCfg.BatchTimeout,
			RetryInterval:  exportCfg.RetryInterval,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create span exporter: %w", err)
		}

		e.reporter, err = exporter.NewReporter(exportCfg.StatsSchedule, e.spans.Stats, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create stats reporter: %w", err)
		}

		opts = append(opts, sdktrace.WithSpanProcessor(e.spans.Processor()))
	}

	e.provider = sdktrace.NewTracerProvider(opts...)
	e.tracer = e.provider.Tracer(instrumentationName)

	return e, nil
}

// Start launches the background drain and the stats reporter. Calling it
// more than once has no effect.
func (e *Exporter) Start(ctx context.Context) error {
	var err error
	e.startOnce.Do(func() {
		if e.spans == nil {
			return
		}
		e.spans.Start(ctx)
		err = e.reporter.Start(ctx)
	})
	return err
}

// Shutdown stops span creation and the drain goroutine. Buffered spans are
// abandoned rather than flushed. Shutting down the process exporter
// unregisters it, so the next InitializeExporter builds a new one.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() {
		processMu.Lock()
		if processExporter == e {
			processExporter = nil
		}
		processMu.Unlock()

		if e.reporter != nil {
			e.reporter.Stop()
		}
		if e.spans != nil {
			e.stopErr = e.spans.Stop(ctx)
		}
		if err := e.provider.Shutdown(ctx); err != nil && e.stopErr == nil {
			e.stopErr = err
		}
	})
	return e.stopErr
}

// Tracer returns the tracer spans are started with.
func (e *Exporter) Tracer() trace.Tracer {
	return e.tracer
}

// ServiceName returns the service.name this exporter was built with.
func (e *Exporter) ServiceName() string {
	return e.serviceName
}

// TracerProvider returns the provider backing this exporter.
func (e *Exporter) TracerProvider() trace.TracerProvider {
	return e.provider
}

// Exporting reports whether spans are sent to a collector.
func (e *Exporter) Exporting() bool {
	return e.spans != nil
}

// Stats returns span buffer and export counters. It is the zero value when
// export is disabled.
func (e *Exporter) Stats() exporter.Stats {
	if e.spans == nil {
		return exporter.Stats{}
	}
	return e.spans.Stats()
}

var (
	processMu       sync.Mutex
	processExporter *Exporter
)

// InitializeExporter builds and starts the process exporter on first use.
// Later calls return the same instance; if they name a different service,
// ErrServiceNameMismatch is returned alongside it. opts are applied only on
// the first call.
func InitializeExporter(serviceName string, opts ...Option) (*Exporter, error) {
	processMu.Lock()
	defer processMu.Unlock()

	if processExporter != nil {
		if processExporter.serviceName != serviceName {
			return processExporter, fmt.Errorf("%w: have %q, got %q",
				ErrServiceNameMismatch, processExporter.serviceName, serviceName)
		}
		return processExporter, nil
	}

	cfg := Config{ServiceName: serviceName}
	for _, opt := range opts {
		opt(&cfg)
	}

	e, err := NewExporter(cfg)
	if err != nil {
		return nil, err
	}
	if err := e.Start(context.Background()); err != nil {
		return nil, err
	}

	processExporter = e
	return e, nil
}

// Option customizes InitializeExporter.
type Option func(*Config)

// WithTracingConfig sets sampler and span limits.
func WithTracingConfig(cfg *config.TracingConfig) Option {
	return func(c *Config) { c.Tracing = cfg }
}

// WithExporterConfig sets the span buffer and collector settings.
func WithExporterConfig(cfg *config.ExporterConfig) Option {
	return func(c *Config) { c.Export = cfg }
}

// WithClientFactory replaces the OTLP/gRPC client.
func WithClientFactory(f exporter.ClientFactory) Option {
	return func(c *Config) { c.NewClient = f }
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.ServiceVersion = version }
}

// WithLogger sets the logger used for export diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

type exporterKey struct{}

// ContextWithExporter returns a context carrying e for StartSpan.
func ContextWithExporter(ctx context.Context, e *Exporter) context.Context {
	return context.WithValue(ctx, exporterKey{}, e)
}

// ExporterFromContext returns the exporter carried by ctx, or nil.
func ExporterFromContext(ctx context.Context) *Exporter {
	e, _ := ctx.Value(exporterKey{}).(*Exporter)
	return e
}

func currentExporter(ctx context.Context) *Exporter {
	if e := ExporterFromContext(ctx); e != nil {
		return e
	}
	processMu.Lock()
	defer processMu.Unlock()
	return processExporter
}

var (
	noopProvider = noop.NewTracerProvider()
	noopTracer   = noopProvider.Tracer(instrumentationName)
)

// StartSpan starts a span using the exporter carried by ctx, falling back to
// the process exporter registered by InitializeExporter. The span is a child
// of the span context ambient in ctx, local or remote, and otherwise the root
// of a new trace.
//
// With no exporter at all the span does not record. It carries the parent's
// context, or a fresh unsampled root so links and annotations made from it
// stay valid.
//
// StartSpan never blocks on export. End must be called exactly once:
//
//	ctx, span := tracing.StartSpan(ctx, "reconcile")
//	defer span.End()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if e := currentExporter(ctx); e != nil {
		return e.tracer.Start(ctx, name, opts...)
	}
	if !trace.SpanContextFromContext(ctx).IsValid() {
		if root, err := tracecontext.NewSampled(); err == nil {
			root.Sampled = false
			ctx = trace.ContextWithSpanContext(ctx, root.SpanContext())
		}
	}
	return noopTracer.Start(ctx, name, opts...)
}

// SpanFromContext returns the current span from the context.
// If no span exists, a noop span is returned.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// TraceID returns the trace ID from the context as a string.
// Returns empty string if no trace context exists.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanID returns the span ID from the context as a string.
// Returns empty string if no span context exists.
func SpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}

// IsSampled returns whether the current trace is sampled.
func IsSampled(ctx context.Context) bool {
	return trace.SpanContextFromContext(ctx).IsSampled()
}

// SetStatus sets the span status based on an error.
// If err is nil, status is set to OK, otherwise to Error.
func SetStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

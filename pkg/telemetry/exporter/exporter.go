package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ErrExportUnavailable wraps failures to reach or upload to the collector.
// It is logged and counted, never returned to span producers.
var ErrExportUnavailable = errors.New("span export unavailable")

const (
	// DefaultMaxBatchSpans is the maximum number of spans per upload.
	DefaultMaxBatchSpans = 512

	// DefaultBatchTimeout is how long spans wait before a partial batch is sent.
	DefaultBatchTimeout = 5 * time.Second

	// DefaultRetryInterval is the fixed delay before reconnecting after a failure.
	DefaultRetryInterval = 5 * time.Minute

	// stopClientTimeout bounds closing a failed client connection.
	stopClientTimeout = 5 * time.Second
)

// ClientFactory returns a new, unstarted OTLP client. A client is discarded
// after its first failure, so the factory is called once per connection.
type ClientFactory func() otlptrace.Client

// Config configures an Exporter.
type Config struct {
	// NewClient builds the collector client. Required.
	NewClient ClientFactory

	// BufferMaxBytes is the span buffer budget. Default: 1 MiB.
	BufferMaxBytes int

	// MaxBatchSpans caps spans per upload. Default: 512.
	MaxBatchSpans int

	// BatchTimeout is the flush period for partial batches. Default: 5s.
	BatchTimeout time.Duration

	// RetryInterval is the fixed reconnect delay. Default: 5m.
	RetryInterval time.Duration

	// Logger receives export diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Stats is a snapshot of exporter state.
type Stats struct {
	BufferedSpans int
	BufferedBytes int
	MaxBytes      int
	Enqueued      uint64
	Dropped       uint64
	Exported      uint64
	Rejected      uint64
	Batches       uint64
	Failures      uint64
	Connected     bool
	LastError     string
}

// Exporter drains a SpanBuffer to an OTLP collector from a single background
// goroutine. Spans are sent in enqueue order and are removed from the buffer
// once the collector answered for them: accepted, or rejected as a request
// that can never succeed. After a transport failure the batch stays at the
// head, the connection is closed and re-established after RetryInterval;
// nothing is persisted.
type Exporter struct {
	cfg       Config
	buffer    *SpanBuffer
	processor *Processor
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	exported  atomic.Uint64
	rejected  atomic.Uint64
	batches   atomic.Uint64
	failures  atomic.Uint64
	connected atomic.Bool
	lastError atomic.Value
}

// New creates an exporter. Call Start to begin draining.
func New(cfg Config) (*Exporter, error) {
	if cfg.NewClient == nil {
		return nil, errors.New("exporter client factory is nil")
	}
	if cfg.BufferMaxBytes <= 0 {
		cfg.BufferMaxBytes = DefaultBufferMaxBytes
	}
	if cfg.MaxBatchSpans <= 0 {
		cfg.MaxBatchSpans = DefaultMaxBatchSpans
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	buffer := NewSpanBuffer(cfg.BufferMaxBytes)
	return &Exporter{
		cfg:       cfg,
		buffer:    buffer,
		processor: NewProcessor(buffer, cfg.MaxBatchSpans),
		logger:    cfg.Logger.With("component", "span.exporter"),
	}, nil
}

// Processor returns the span processor to register with a TracerProvider.
func (e *Exporter) Processor() *Processor {
	return e.processor
}

// Buffer returns the underlying span buffer.
func (e *Exporter) Buffer() *SpanBuffer {
	return e.buffer
}

// Start launches the drain goroutine. It is a no-op if already started.
func (e *Exporter) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.started = true

	go e.run(ctx)
}

// Stop cancels the drain goroutine. In-flight uploads are abandoned and the
// buffer contents are lost. Stop waits only for the goroutine to observe the
// cancellation, bounded by ctx.
func (e *Exporter) Stop(ctx context.Context) error {
	_ = e.processor.Shutdown(ctx)

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.cancel()
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of buffer and export counters.
func (e *Exporter) Stats() Stats {
	s := Stats{
		BufferedSpans: e.buffer.Len(),
		BufferedBytes: e.buffer.Bytes(),
		MaxBytes:      e.buffer.MaxBytes(),
		Enqueued:      e.buffer.Enqueued(),
		Dropped:       e.buffer.Dropped(),
		Exported:      e.exported.Load(),
		Rejected:      e.rejected.Load(),
		Batches:       e.batches.Load(),
		Failures:      e.failures.Load(),
		Connected:     e.connected.Load(),
	}
	if v, ok := e.lastError.Load().(string); ok {
		s.LastError = v
	}
	return s
}

func (e *Exporter) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.BatchTimeout)
	defer ticker.Stop()

	var client otlptrace.Client
	defer func() {
		if client != nil {
			// ctx is already cancelled, so Stop abandons in-flight exports.
			_ = client.Stop(ctx)
		}
		e.connected.Store(false)
	}()

	for {
		if client == nil {
			c := e.cfg.NewClient()
			if err := c.Start(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				e.recordFailure(fmt.Errorf("%w: connect: %v", ErrExportUnavailable, err))
				if !e.sleep(ctx, e.cfg.RetryInterval) {
					return
				}
				continue
			}
			client = c
		} else {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-e.processor.Flushes():
			}
		}

		if err := e.drain(ctx, client); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.recordFailure(err)
			e.stopClient(ctx, client)
			client = nil
			if !e.sleep(ctx, e.cfg.RetryInterval) {
				return
			}
		}
	}
}

// drain uploads batches until the buffer is empty or an upload fails. A
// batch that failed in transport stays at the head of the buffer. A batch
// the collector rejected permanently is dropped so later spans can pass.
func (e *Exporter) drain(ctx context.Context, client otlptrace.Client) error {
	for {
		batch := e.buffer.Peek(e.cfg.MaxBatchSpans)
		if len(batch) == 0 {
			return nil
		}
		err := client.UploadTraces(ctx, batchToProto(batch))
		switch {
		case err == nil:
			e.buffer.Commit(len(batch))
			e.exported.Add(uint64(len(batch)))
			e.batches.Add(1)
			if !e.connected.Swap(true) {
				e.logger.Info("connected to trace collector")
			}
		case ctx.Err() == nil && isPermanent(err):
			e.buffer.Commit(len(batch))
			e.rejected.Add(uint64(len(batch)))
			e.batches.Add(1)
			e.lastError.Store(err.Error())
			e.logger.Warn("trace collector rejected spans, dropping batch",
				"error", err,
				"spans", len(batch),
				"code", grpcstatus.Code(err).String(),
			)
		default:
			e.connected.Store(false)
			return fmt.Errorf("%w: upload %d spans: %v", ErrExportUnavailable, len(batch), err)
		}
	}
}

// isPermanent reports whether the collector answered err for the request
// itself, so resending the same batch can never succeed. ResourceExhausted
// is permanent unless the collector asked for a retry with RetryInfo, which
// is how it signals throttling rather than an oversized message.
func isPermanent(err error) bool {
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.OutOfRange, codes.Unimplemented:
		return true
	case codes.ResourceExhausted:
		for _, d := range st.Details() {
			if _, retry := d.(*errdetails.RetryInfo); retry {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (e *Exporter) stopClient(ctx context.Context, client otlptrace.Client) {
	ctx, cancel := context.WithTimeout(ctx, stopClientTimeout)
	defer cancel()
	if err := client.Stop(ctx); err != nil {
		e.logger.Debug("failed to stop trace client", "error", err)
	}
}

func (e *Exporter) recordFailure(err error) {
	e.failures.Add(1)
	e.lastError.Store(err.Error())
	e.logger.Warn("span export failed, retrying later",
		"error", err,
		"retry_in", e.cfg.RetryInterval,
		"buffered_spans", e.buffer.Len(),
		"buffered_bytes", e.buffer.Bytes(),
	)
}

// sleep waits for d and reports false if ctx ended first.
func (e *Exporter) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package exporter

import (
	"context"
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Processor is an sdktrace.SpanProcessor that converts sampled spans to OTLP
// and appends them to a SpanBuffer. It never blocks the caller ending a span.
type Processor struct {
	buffer    *SpanBuffer
	batchSize int
	flush     chan struct{}
	stopped   atomic.Bool
}

var _ sdktrace.SpanProcessor = (*Processor)(nil)

// NewProcessor creates a processor feeding buffer. The drain side is signalled
// through Flushes whenever batchSize spans are waiting.
func NewProcessor(buffer *SpanBuffer, batchSize int) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultMaxBatchSpans
	}
	return &Processor{
		buffer:    buffer,
		batchSize: batchSize,
		flush:     make(chan struct{}, 1),
	}
}

// OnStart does nothing.
func (p *Processor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd enqueues s if it is sampled.
func (p *Processor) OnEnd(s sdktrace.ReadOnlySpan) {
	if p.stopped.Load() || !s.SpanContext().IsSampled() {
		return
	}
	if !p.buffer.Enqueue(newEntry(s)) {
		return
	}
	if p.buffer.Len() >= p.batchSize {
		p.signal()
	}
}

// ForceFlush asks the drain loop to send what is buffered. It does not wait
// for the upload.
func (p *Processor) ForceFlush(context.Context) error {
	p.signal()
	return nil
}

// Shutdown stops accepting spans. Buffered spans are left to the drain loop.
func (p *Processor) Shutdown(context.Context) error {
	p.stopped.Store(true)
	return nil
}

// Flushes returns the channel signalled when a batch is ready.
func (p *Processor) Flushes() <-chan struct{} {
	return p.flush
}

func (p *Processor) signal() {
	select {
	case p.flush <- struct{}{}:
	default:
	}
}

package exporter

import (
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
)

// DefaultBufferMaxBytes is the default byte budget of a SpanBuffer.
const DefaultBufferMaxBytes = 1 << 20

// Entry is a finished span awaiting export.
type Entry struct {
	Span     *tracev1.Span
	Scope    instrumentation.Scope
	Resource *resource.Resource

	// Size is the serialized size of Span in bytes.
	Size int
}

// SpanBuffer is a FIFO of finished spans bounded by serialized size.
//
// Enqueue never blocks. When an entry does not fit in the remaining budget it
// is dropped and counted (drop-newest), so spans already buffered keep their
// place. A single consumer reads with Peek and removes what it sent with
// Commit.
type SpanBuffer struct {
	mu       sync.Mutex
	entries  []Entry
	bytes    int
	maxBytes int

	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// NewSpanBuffer creates a buffer holding at most maxBytes of serialized spans.
// A non-positive maxBytes selects DefaultBufferMaxBytes.
func NewSpanBuffer(maxBytes int) *SpanBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultBufferMaxBytes
	}
	return &SpanBuffer{maxBytes: maxBytes}
}

// Enqueue appends e and reports whether it was accepted.
func (b *SpanBuffer) Enqueue(e Entry) bool {
	b.mu.Lock()
	if e.Size < 0 || b.bytes+e.Size > b.maxBytes {
		b.mu.Unlock()
		b.dropped.Add(1)
		return false
	}
	b.entries = append(b.entries, e)
	b.bytes += e.Size
	b.mu.Unlock()

	b.enqueued.Add(1)
	return true
}

// Peek returns up to max of the oldest entries without removing them. The
// returned slice is a copy.
func (b *SpanBuffer) Peek(max int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.entries)
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]Entry, n)
	copy(out, b.entries[:n])
	return out
}

// Commit removes the n oldest entries after they were transmitted.
func (b *SpanBuffer) Commit(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.entries) {
		n = len(b.entries)
	}
	if n <= 0 {
		return
	}
	for _, e := range b.entries[:n] {
		b.bytes -= e.Size
	}
	clear(b.entries[:n])
	b.entries = b.entries[n:]
	if len(b.entries) == 0 {
		b.entries = nil
	}
}

// Len returns the number of buffered spans.
func (b *SpanBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Bytes returns the serialized size of buffered spans.
func (b *SpanBuffer) Bytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

// MaxBytes returns the byte budget.
func (b *SpanBuffer) MaxBytes() int {
	return b.maxBytes
}

// Enqueued returns the number of accepted spans since creation.
func (b *SpanBuffer) Enqueued() uint64 {
	return b.enqueued.Load()
}

// Dropped returns the number of spans rejected for lack of space.
func (b *SpanBuffer) Dropped() uint64 {
	return b.dropped.Load()
}

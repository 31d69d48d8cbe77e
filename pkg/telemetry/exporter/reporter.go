package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultStatsSchedule logs exporter statistics every minute.
const DefaultStatsSchedule = "@every 1m"

// StatsSource returns a statistics snapshot.
type StatsSource func() Stats

// Reporter periodically logs exporter statistics on a cron schedule. Drops
// are reported as deltas since the previous run.
type Reporter struct {
	schedule string
	source   StatsSource
	cron     *cron.Cron
	logger   *slog.Logger

	mu           sync.Mutex
	running      bool
	entry        cron.EntryID
	stop         chan struct{}
	done         chan struct{}
	lastDropped  uint64
	lastRejected uint64
	lastFailed   uint64
}

// NewReporter creates a reporter. An empty schedule disables reporting.
func NewReporter(schedule string, source StatsSource, logger *slog.Logger) (*Reporter, error) {
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		schedule: schedule,
		source:   source,
		cron:     cron.New(),
		logger:   logger.With("component", "span.exporter.stats"),
	}, nil
}

// Start schedules reporting until ctx is cancelled or Stop is called.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schedule == "" {
		r.logger.Debug("stats schedule not configured, skipping reporter")
		return nil
	}
	if r.running {
		return nil
	}

	entry, err := r.cron.AddFunc(r.schedule, r.Report)
	if err != nil {
		return fmt.Errorf("failed to schedule stats reporting: %w", err)
	}
	r.entry = entry
	r.cron.Start()
	r.running = true

	stop, done := make(chan struct{}), make(chan struct{})
	r.stop, r.done = stop, done
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			r.Stop()
		case <-stop:
		}
	}()

	return nil
}

// Report logs one statistics snapshot.
func (r *Reporter) Report() {
	s := r.source()

	r.mu.Lock()
	droppedDelta := s.Dropped - r.lastDropped
	rejectedDelta := s.Rejected - r.lastRejected
	failedDelta := s.Failures - r.lastFailed
	r.lastDropped = s.Dropped
	r.lastRejected = s.Rejected
	r.lastFailed = s.Failures
	r.mu.Unlock()

	attrs := []any{
		"buffered_spans", s.BufferedSpans,
		"buffered_bytes", s.BufferedBytes,
		"max_bytes", s.MaxBytes,
		"exported", s.Exported,
		"dropped", s.Dropped,
		"dropped_since_last", droppedDelta,
		"rejected", s.Rejected,
		"connected", s.Connected,
	}

	if droppedDelta > 0 || rejectedDelta > 0 || failedDelta > 0 {
		r.logger.Warn("span buffer under pressure", append(attrs, "last_error", s.LastError)...)
		return
	}
	r.logger.Info("span buffer statistics", attrs...)
}

// Stop stops the schedule and waits for a running report to finish. The
// reporter can be started again afterwards.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cron.Remove(r.entry)
	close(r.stop)
	r.mu.Unlock()

	<-r.cron.Stop().Done()
}

// NextRun returns the next scheduled report time, or nil when not scheduled.
func (r *Reporter) NextRun() *time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// Package runtime schedules the detectors: each one ticks at its own
// cadence, reads the events newer than its cursor minus the rule's window,
// replays them through the detector and hands the emissions to the sink.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentra/siem/internal/detect"
	"github.com/sentra/siem/internal/event"
	"github.com/sentra/siem/internal/metrics"
	"github.com/sentra/siem/internal/sink"
	"github.com/sentra/siem/internal/store"
)

// EventSource is the slice of the store the runner reads from.
type EventSource interface {
	Read(ctx context.Context, f store.Filter) ([]event.Event, error)
}

// Runner owns the detector set and their scan loops.
type Runner struct {
	source    EventSource
	sink      *sink.Sink
	cursorDir string
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	detectors []detect.Detector
}

func NewRunner(source EventSource, s *sink.Sink, cursorDir string, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		source:    source,
		sink:      s,
		cursorDir: cursorDir,
		metrics:   m,
		logger:    logger.With("component", "runner"),
		now:       time.Now,
	}
}

// Register adds detectors to the run set.
func (r *Runner) Register(ds ...detect.Detector) {
	r.detectors = append(r.detectors, ds...)
}

// Detectors returns the registered set, for --rule filtering.
func (r *Runner) Detectors() []detect.Detector {
	return r.detectors
}

// Run ticks every registered detector at its cadence until ctx is
// cancelled. Each detector gets its own goroutine; state is never shared
// across detectors so no locking is needed inside them.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range r.detectors {
		wg.Add(1)
		go func(d detect.Detector) {
			defer wg.Done()
			r.loop(ctx, d)
		}(d)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, d detect.Detector) {
	logger := r.logger.With("detector", d.Name())
	logger.Info("detector started", "cadence", d.Cadence(), "window", d.Window())

	// First pass runs immediately, then on the ticker.
	if err := r.ScanOnce(ctx, d); err != nil {
		logger.Error("scan failed", "error", err)
	}

	ticker := time.NewTicker(d.Cadence())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("detector stopped")
			return
		case <-ticker.C:
			if err := r.ScanOnce(ctx, d); err != nil {
				logger.Error("scan failed", "error", err)
			}
		}
	}
}

// ScanOnce runs one incremental pass of a detector: load the cursor, read
// events from cursor minus the rule's window so sliding state rebuilds
// correctly, replay them in timestamp order, deliver alerts, advance the
// cursor. Transient window state is cleared before the replay; the dedupe
// map survives, so an incident alerted last tick stays suppressed.
func (r *Runner) ScanOnce(ctx context.Context, d detect.Detector) error {
	start := r.now()
	cursor := NewCursor(r.cursorDir, d.Name())
	last := cursor.Load()

	filter := store.Filter{Categories: d.Categories()}
	if !last.IsZero() {
		since := last.Add(-d.Window())
		filter.Since = &since
	}

	events, err := r.source.Read(ctx, filter)
	if err != nil {
		return err
	}

	d.Reset()
	var alerts []event.Alert
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		alerts = append(alerts, d.Process(ev)...)
	}

	// Alerts for events we already scanned last tick are re-derived from the
	// lookback replay; the dedupe map and the DB uniqueness constraint keep
	// them from surfacing twice.
	inserted := r.sink.Deliver(ctx, alerts)

	if r.metrics != nil {
		r.metrics.ScanDuration.WithLabelValues(d.Name()).Observe(time.Since(start).Seconds())
		r.metrics.EventsScanned.WithLabelValues(d.Name()).Add(float64(len(events)))
	}
	if err := cursor.Store(start); err != nil {
		r.logger.Warn("cursor not advanced", "detector", d.Name(), "error", err)
	}

	r.logger.Debug("scan complete",
		"detector", d.Name(),
		"events", len(events),
		"alerts", len(alerts),
		"inserted", inserted,
		"took", time.Since(start),
	)
	return nil
}

// FullScan replays the entire event history through a detector, ignoring
// and not advancing the cursor. Used by the --full-scan mode for backfill
// and rule validation.
func (r *Runner) FullScan(ctx context.Context, d detect.Detector) (int, error) {
	events, err := r.source.Read(ctx, store.Filter{Categories: d.Categories()})
	if err != nil {
		return 0, err
	}

	d.Reset()
	var alerts []event.Alert
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		alerts = append(alerts, d.Process(ev)...)
	}
	r.sink.Deliver(ctx, alerts)
	return len(alerts), nil
}

// Package ingest feeds raw log data into the pipeline: a fsnotify-based
// file tailer for local logs and an HTTP push handler for remote shippers.
// Both paths funnel through the same Pipeline, which normalizes and
// persists each record.
package ingest

import (
	"context"
	"log/slog"

	"github.com/sentra/siem/internal/event"
	"github.com/sentra/siem/internal/metrics"
	"github.com/sentra/siem/internal/normalize"
)

// EventWriter is the slice of the store the pipeline needs.
type EventWriter interface {
	Append(ctx context.Context, ev *event.Event) (int64, error)
}

// Pipeline is the single consumer behind all ingest paths. One goroutine
// drives it, so events from the same file are persisted in file order.
type Pipeline struct {
	normalizer *normalize.Normalizer
	store      EventWriter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewPipeline(n *normalize.Normalizer, st EventWriter, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		normalizer: n,
		store:      st,
		metrics:    m,
		logger:     logger.With("component", "ingest"),
	}
}

// Line parses and persists one raw log line. Unrecognized lines count as
// parse failures and are dropped; the return reports whether any parser
// claimed the line.
func (p *Pipeline) Line(ctx context.Context, line string) bool {
	ev := p.normalizer.Line(line)
	if ev == nil {
		if p.metrics != nil {
			p.metrics.ParseFailures.Inc()
		}
		return false
	}
	p.persist(ctx, ev)
	return true
}

// Record validates and persists a pre-structured event from the push API.
func (p *Pipeline) Record(ctx context.Context, ev *event.Event) error {
	ev, err := p.normalizer.Record(ev)
	if err != nil {
		return err
	}
	p.persist(ctx, ev)
	return nil
}

func (p *Pipeline) persist(ctx context.Context, ev *event.Event) {
	if _, err := p.store.Append(ctx, ev); err != nil {
		if p.metrics != nil {
			p.metrics.InsertFailures.Inc()
		}
		p.logger.Error("event not persisted", "error", err)
		return
	}
	if p.metrics != nil {
		p.metrics.EventsIngested.WithLabelValues(parserLabel(ev)).Inc()
	}
}

// parserLabel maps an event back to the parser that produced it, for the
// ingest counter.
func parserLabel(ev *event.Event) string {
	switch {
	case ev.Category.Has(event.CategoryFirewall):
		return "firewall"
	case ev.Category.Has(event.CategoryAuthentication):
		return "ssh_auth"
	case ev.Category.Has(event.CategoryWeb):
		return "web_access"
	default:
		return "structured"
	}
}

// Package sink delivers detector alerts: persist to Postgres with conflict
// suppression, then fan out to the live feed and optional Redis channel.
package sink

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/sentra/siem/internal/event"
	"github.com/sentra/siem/internal/livefeed"
	"github.com/sentra/siem/internal/metrics"
	"github.com/sentra/siem/internal/store"
)

// AlertStore is the slice of the store the sink needs.
type AlertStore interface {
	UpsertAlerts(ctx context.Context, alerts []event.Alert) (int64, error)
}

// RedisOut is satisfied by livefeed.RedisPublisher. Nil disables fan-out.
type RedisOut interface {
	Publish(ctx context.Context, env *livefeed.Envelope)
}

// Sink persists alert batches and publishes them to live subscribers.
type Sink struct {
	store   AlertStore
	feed    *livefeed.Feed
	redis   RedisOut
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(st AlertStore, feed *livefeed.Feed, redis RedisOut, m *metrics.Metrics, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		store:   st,
		feed:    feed,
		redis:   redis,
		metrics: m,
		logger:  logger.With("component", "sink"),
	}
}

// Deliver normalizes, persists and publishes a batch of alerts. Persistence
// errors are logged, not returned; a failed batch must not halt the scan
// loop. Returns the number of rows actually inserted.
func (s *Sink) Deliver(ctx context.Context, alerts []event.Alert) int64 {
	if len(alerts) == 0 {
		return 0
	}
	for i := range alerts {
		alerts[i].Timestamp = alerts[i].Timestamp.UTC()
		alerts[i].Raw = coerceRaw(alerts[i].Raw)
	}

	inserted, err := s.store.UpsertAlerts(ctx, alerts)
	if err != nil {
		s.logger.Error("alert batch partially failed", "total", len(alerts), "inserted", inserted, "error", err)
	}
	if s.metrics != nil {
		for _, a := range alerts {
			s.metrics.AlertsEmitted.WithLabelValues(a.Rule, a.Severity).Inc()
		}
		if conflicts := int64(len(alerts)) - inserted; conflicts > 0 && err == nil {
			s.metrics.AlertConflicts.Add(float64(conflicts))
		}
	}

	for _, a := range alerts {
		s.logger.Warn("alert",
			"rule", a.Rule,
			"user", a.UserName,
			"source_ip", a.SourceIP,
			"severity", a.Severity,
			"score", a.Score,
			"evidence", a.Evidence,
		)
		if s.feed != nil {
			env := s.feed.Publish(a)
			if s.redis != nil {
				s.redis.Publish(ctx, env)
			}
		}
	}
	return inserted
}

// coerceRaw makes a raw snapshot JSON-safe: times become RFC 3339 strings
// and address values become their canonical string form. Nested maps and
// slices are walked recursively.
func coerceRaw(raw map[string]interface{}) map[string]interface{} {
	if raw == nil {
		return nil
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = coerceValue(v)
	}
	return out
}

func coerceValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case netip.Addr:
		return val.String()
	case netip.AddrPort:
		return val.String()
	case map[string]interface{}:
		return coerceRaw(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = coerceValue(e)
		}
		return out
	default:
		return v
	}
}

// BatchSize mirrors the store's insert batch size for callers that want to
// chunk upstream.
const BatchSize = store.AlertBatchSize

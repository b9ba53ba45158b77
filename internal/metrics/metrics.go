// Package metrics registers the Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the collector and detectors.
type Metrics struct {
	// Ingest metrics
	EventsIngested *prometheus.CounterVec
	ParseFailures  prometheus.Counter
	InsertFailures prometheus.Counter

	// Detection metrics
	AlertsEmitted  *prometheus.CounterVec
	AlertConflicts prometheus.Counter
	ScanDuration   *prometheus.HistogramVec
	EventsScanned  *prometheus.CounterVec
}

// New creates and registers all pipeline metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		EventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siem_events_ingested_total",
				Help: "Normalized events persisted, by source parser",
			},
			[]string{"parser"}, // firewall, ssh_auth, web_access, structured
		),

		ParseFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "siem_parse_failures_total",
				Help: "Raw lines no parser recognized",
			},
		),

		InsertFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "siem_event_insert_failures_total",
				Help: "Events that failed to persist",
			},
		),

		AlertsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siem_alerts_emitted_total",
				Help: "Alerts emitted by the detectors, before DB dedupe",
			},
			[]string{"rule", "severity"},
		),

		AlertConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "siem_alert_conflicts_total",
				Help: "Alert inserts dropped by the uniqueness constraint",
			},
		),

		ScanDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siem_scan_duration_seconds",
				Help:    "Duration of one detector scan pass",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"detector"},
		),

		EventsScanned: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siem_events_scanned_total",
				Help: "Events read from the store per detector scan",
			},
			[]string{"detector"},
		),
	}
}

// Package report reads back recent alerts for display and export.
package report

import (
	"context"
	"time"

	"github.com/sentra/siem/internal/event"
)

// DefaultLimit is how many alerts a summary covers when unspecified.
const DefaultLimit = 50

// AlertReader is the slice of the store the reporter needs.
type AlertReader interface {
	RecentAlerts(ctx context.Context, n int) ([]event.Alert, error)
}

// Entry is one row of a summary, trimmed to the fields a formatting layer
// cares about.
type Entry struct {
	Rule      string    `json:"rule"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user,omitempty"`
	SourceIP  string    `json:"source_ip,omitempty"`
	Technique string    `json:"technique"`
	Evidence  string    `json:"evidence,omitempty"`
}

// Reporter summarizes the newest alerts, most recent first.
type Reporter struct {
	store AlertReader
}

func New(store AlertReader) *Reporter {
	return &Reporter{store: store}
}

// Summarize returns the newest n alerts as report entries. n <= 0 means
// DefaultLimit.
func (r *Reporter) Summarize(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = DefaultLimit
	}
	alerts, err := r.store.RecentAlerts(ctx, n)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(alerts))
	for _, a := range alerts {
		entries = append(entries, Entry{
			Rule:      a.Rule,
			Severity:  a.Severity,
			Timestamp: a.Timestamp,
			User:      a.UserName,
			SourceIP:  a.SourceIP,
			Technique: a.Technique,
			Evidence:  a.Evidence,
		})
	}
	return entries, nil
}

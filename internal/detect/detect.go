// Package detect implements the streaming detection rules. Every detector is
// a stateful instance that consumes time-ordered events and emits alerts.
//
// All rules share the same skeleton: filter events by category/outcome,
// derive a grouping key, maintain per-key sliding windows of timestamps,
// compare the windowed aggregate against a threshold, and gate emissions
// through a per-identity dedupe timer. Source addresses inside the
// configured whitelist CIDRs are dropped before any of that happens.
package detect

import (
	"math"
	"sort"
	"time"

	"github.com/sentra/siem/internal/event"
)

// Detector is a single streaming rule (or a family of sub-rules sharing
// state). The runtime owns one instance per registration for the process
// lifetime.
type Detector interface {
	// Name is a short slug used for cursor files and logging.
	Name() string

	// Cadence is how often the incremental scheduler ticks this detector.
	Cadence() time.Duration

	// Window is the longest sliding window the rule uses; incremental scans
	// read events newer than now-Window so state rebuilds correctly.
	Window() time.Duration

	// Categories narrows the store read. Empty means all events.
	Categories() []string

	// Reset clears transient window state before an incremental tick. The
	// cross-tick dedupe map is preserved.
	Reset()

	// Process consumes one event in timestamp order and returns any alerts
	// it triggered.
	Process(ev event.Event) []event.Alert
}

// Score normalizes a windowed observation against its threshold onto 0..10.
// k is rule-specific: 5 for most rules, 7 for allowed-then-blocked.
func Score(observed, threshold int, k float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return math.Min(10.0, float64(observed)/float64(threshold)*k)
}

// deduper suppresses repeat emissions of the same (rule, key) identity
// within the dedupe window. It survives Reset so an incident alerted on one
// tick stays quiet on the next.
type deduper struct {
	window time.Duration
	last   map[string]time.Time
}

func newDeduper(window time.Duration) *deduper {
	return &deduper{window: window, last: make(map[string]time.Time)}
}

// suppressed reports whether an emission for id at ts falls inside the
// dedupe window of the previous emission.
func (d *deduper) suppressed(id string, ts time.Time) bool {
	last, ok := d.last[id]
	return ok && ts.Sub(last) < d.window
}

// mark records an emission for id at ts.
func (d *deduper) mark(id string, ts time.Time) {
	d.last[id] = ts
}

// tsWindow is a per-key FIFO of timestamps with evict-older-than-W.
type tsWindow struct {
	entries []time.Time
}

// add appends ts and drops entries older than window relative to ts.
// Eviction pops from the front only, so cost is amortized O(1).
func (w *tsWindow) add(ts time.Time, window time.Duration) {
	w.entries = append(w.entries, ts)
	w.evict(ts, window)
}

func (w *tsWindow) evict(now time.Time, window time.Duration) {
	i := 0
	for i < len(w.entries) && now.Sub(w.entries[i]) > window {
		i++
	}
	w.entries = w.entries[i:]
}

func (w *tsWindow) count() int { return len(w.entries) }

// taggedWindow is a FIFO of (timestamp, tag) pairs: tags are usernames,
// addresses, ports or paths depending on the rule.
type taggedWindow struct {
	entries []taggedEntry
}

type taggedEntry struct {
	ts  time.Time
	tag string
}

func (w *taggedWindow) add(ts time.Time, tag string, window time.Duration) {
	w.entries = append(w.entries, taggedEntry{ts: ts, tag: tag})
	w.evict(ts, window)
}

func (w *taggedWindow) evict(now time.Time, window time.Duration) {
	i := 0
	for i < len(w.entries) && now.Sub(w.entries[i].ts) > window {
		i++
	}
	w.entries = w.entries[i:]
}

func (w *taggedWindow) count() int { return len(w.entries) }

// uniqueWithin returns the distinct tags no older than window relative to now.
func (w *taggedWindow) uniqueWithin(now time.Time, window time.Duration) map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range w.entries {
		if now.Sub(e.ts) <= window {
			set[e.tag] = struct{}{}
		}
	}
	return set
}

// countWithin returns how many entries are no older than window.
func (w *taggedWindow) countWithin(now time.Time, window time.Duration) int {
	n := 0
	for _, e := range w.entries {
		if now.Sub(e.ts) <= window {
			n++
		}
	}
	return n
}

func sortedTags(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

package detect

import (
	"fmt"
	"time"

	"github.com/sentra/siem/internal/event"
)

const RuleAllowedBlocked = "Firewall Allowed → Suddenly Blocked"

// AllowedBlockedConfig tunes the allowed-then-blocked rule. Defaults:
// deny threshold 3, window 5m, dedupe 5m, cadence 40s.
type AllowedBlockedConfig struct {
	DenyThreshold int
	Window        time.Duration
	Dedupe        time.Duration
	Cadence       time.Duration
}

func (c *AllowedBlockedConfig) withDefaults() {
	if c.DenyThreshold <= 0 {
		c.DenyThreshold = 3
	}
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.Dedupe <= 0 {
		c.Dedupe = 5 * time.Minute
	}
	if c.Cadence <= 0 {
		c.Cadence = 40 * time.Second
	}
}

// AllowedBlocked flags sources that were once allowed through the firewall
// and then start racking up denials, a sign of revoked access being probed.
// The allowed marker is indefinite: a new allow never resets the deny
// counter, and emission does not clear state. The sliding window alone
// bounds re-firing.
type AllowedBlocked struct {
	cfg       AllowedBlockedConfig
	whitelist *Whitelist

	allowedAt map[string]time.Time // src_ip -> last allowed timestamp
	denies    map[string]*tsWindow // src_ip -> deny timestamps
	dedupe    *deduper
}

func NewAllowedBlocked(cfg AllowedBlockedConfig, wl *Whitelist) *AllowedBlocked {
	cfg.withDefaults()
	d := &AllowedBlocked{cfg: cfg, whitelist: wl, dedupe: newDeduper(cfg.Dedupe)}
	d.Reset()
	return d
}

func (d *AllowedBlocked) Name() string           { return "allowed_blocked" }
func (d *AllowedBlocked) Cadence() time.Duration { return d.cfg.Cadence }
func (d *AllowedBlocked) Window() time.Duration  { return d.cfg.Window }
func (d *AllowedBlocked) Categories() []string   { return []string{event.CategoryFirewall} }

func (d *AllowedBlocked) Reset() {
	d.allowedAt = make(map[string]time.Time)
	d.denies = make(map[string]*tsWindow)
}

func (d *AllowedBlocked) Process(ev event.Event) []event.Alert {
	if !ev.Category.Has(event.CategoryFirewall) {
		return nil
	}
	if ev.SourceIP == "" || d.whitelist.Contains(ev.SourceIP) {
		return nil
	}
	ts := ev.Timestamp

	if ev.Outcome == "allowed" {
		d.allowedAt[ev.SourceIP] = ts
		return nil
	}
	if !isDeny(ev.Outcome) {
		return nil
	}
	if _, seen := d.allowedAt[ev.SourceIP]; !seen {
		return nil
	}

	w, ok := d.denies[ev.SourceIP]
	if !ok {
		w = &tsWindow{}
		d.denies[ev.SourceIP] = w
	}
	w.add(ts, d.cfg.Window)

	n := w.count()
	if n < d.cfg.DenyThreshold {
		return nil
	}

	id := RuleAllowedBlocked + "|" + ev.SourceIP
	if d.dedupe.suppressed(id, ts) {
		return nil
	}
	d.dedupe.mark(id, ts)

	return []event.Alert{{
		Timestamp:     ts,
		Rule:          RuleAllowedBlocked,
		SourceIP:      ev.SourceIP,
		DestinationIP: ev.DestinationIP,
		AttemptCount:  n,
		Severity:      event.SeverityHigh,
		Technique:     event.TechniqueSuspiciousBehavior,
		Score:         Score(n, d.cfg.DenyThreshold, 7),
		Evidence: fmt.Sprintf("Source %s was previously allowed but had %d denied attempts in %d minutes",
			ev.SourceIP, n, int(d.cfg.Window.Minutes())),
		Raw: map[string]interface{}{
			"source_ip":      ev.SourceIP,
			"destination_ip": ev.DestinationIP,
			"count":          n,
			"last_allowed":   d.allowedAt[ev.SourceIP].Format(time.RFC3339),
		},
	}}
}

package detect

import (
	"fmt"
	"time"

	"github.com/sentra/siem/internal/event"
)

const RuleFirewallDenied = "Firewall Denied Access"

// DeniedConfig tunes the firewall-denied rule. Defaults: threshold 5,
// window 5m, dedupe 5m, cadence 40s.
type DeniedConfig struct {
	Threshold int
	Window    time.Duration
	Dedupe    time.Duration
	Cadence   time.Duration
}

func (c *DeniedConfig) withDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 5
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

// Denied fires when one source accumulates repeated firewall denies.
type Denied struct {
	cfg       DeniedConfig
	whitelist *Whitelist

	attempts map[string]*tsWindow // src_ip -> deny timestamps
	dedupe   *deduper
}

func NewDenied(cfg DeniedConfig, wl *Whitelist) *Denied {
	cfg.withDefaults()
	d := &Denied{cfg: cfg, whitelist: wl, dedupe: newDeduper(cfg.Dedupe)}
	d.Reset()
	return d
}

func (d *Denied) Name() string           { return "firewall_denied" }
func (d *Denied) Cadence() time.Duration { return d.cfg.Cadence }
func (d *Denied) Window() time.Duration  { return d.cfg.Window }
func (d *Denied) Categories() []string   { return []string{event.CategoryFirewall} }

func (d *Denied) Reset() {
	d.attempts = make(map[string]*tsWindow)
}

func isDeny(outcome string) bool {
	return outcome == "denied" || outcome == "blocked"
}

func (d *Denied) Process(ev event.Event) []event.Alert {
	if !ev.Category.Has(event.CategoryFirewall) || !isDeny(ev.Outcome) {
		return nil
	}
	if ev.SourceIP == "" || d.whitelist.Contains(ev.SourceIP) {
		return nil
	}
	ts := ev.Timestamp

	w, ok := d.attempts[ev.SourceIP]
	if !ok {
		w = &tsWindow{}
		d.attempts[ev.SourceIP] = w
	}
	w.add(ts, d.cfg.Window)

	n := w.count()
	if n < d.cfg.Threshold {
		return nil
	}

	id := RuleFirewallDenied + "|" + ev.SourceIP + "|" + ev.DestinationIP
	if d.dedupe.suppressed(id, ts) {
		return nil
	}
	d.dedupe.mark(id, ts)

	score := Score(n, d.cfg.Threshold, 5)
	severity := event.SeverityMedium
	if score >= 5 {
		severity = event.SeverityHigh
	}
	return []event.Alert{{
		Timestamp:     ts,
		Rule:          RuleFirewallDenied,
		UserName:      ev.Username,
		SourceIP:      ev.SourceIP,
		DestinationIP: ev.DestinationIP,
		AttemptCount:  n,
		Severity:      severity,
		Technique:     event.TechniqueNetworkDenial,
		Score:         score,
		Evidence:      fmt.Sprintf("%d denied attempts in last %d minutes", n, int(d.cfg.Window.Minutes())),
		Raw: map[string]interface{}{
			"source_ip":        ev.SourceIP,
			"destination_ip":   ev.DestinationIP,
			"destination_port": ev.DestinationPort,
			"protocol":         ev.Protocol,
			"count":            n,
		},
	}}
}

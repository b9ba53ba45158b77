package detect

import (
	"fmt"
	"time"

	"github.com/sentra/siem/internal/event"
)

const RuleFirewallFlood = "Firewall Flood Detection (Possible DoS/DDoS)"

// FloodConfig tunes the DoS/DDoS rule. Defaults: threshold 1000, window 60s,
// dedupe 5m, cadence 40s.
type FloodConfig struct {
	Threshold int
	Window    time.Duration
	Dedupe    time.Duration
	Cadence   time.Duration
}

func (c *FloodConfig) withDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 1000
	}
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.Dedupe <= 0 {
		c.Dedupe = 5 * time.Minute
	}
	if c.Cadence <= 0 {
		c.Cadence = 40 * time.Second
	}
}

// Flood fires on a high-volume burst of firewall denies from one source.
// The window is not cleared on emission; the dedupe timer alone keeps the
// rule from spamming while the flood continues.
type Flood struct {
	cfg       FloodConfig
	whitelist *Whitelist

	attempts map[string]*tsWindow
	dedupe   *deduper
}

func NewFlood(cfg FloodConfig, wl *Whitelist) *Flood {
	cfg.withDefaults()
	d := &Flood{cfg: cfg, whitelist: wl, dedupe: newDeduper(cfg.Dedupe)}
	d.Reset()
	return d
}

func (d *Flood) Name() string           { return "firewall_flood" }
func (d *Flood) Cadence() time.Duration { return d.cfg.Cadence }
func (d *Flood) Window() time.Duration  { return d.cfg.Window }
func (d *Flood) Categories() []string   { return []string{event.CategoryFirewall} }

func (d *Flood) Reset() {
	d.attempts = make(map[string]*tsWindow)
}

func (d *Flood) Process(ev event.Event) []event.Alert {
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

	id := RuleFirewallFlood + "|" + ev.SourceIP
	if d.dedupe.suppressed(id, ts) {
		return nil
	}
	d.dedupe.mark(id, ts)

	return []event.Alert{{
		Timestamp:     ts,
		Rule:          RuleFirewallFlood,
		SourceIP:      ev.SourceIP,
		DestinationIP: ev.DestinationIP,
		AttemptCount:  n,
		Severity:      event.SeverityCritical,
		Technique:     event.TechniqueDenialOfService,
		Score:         10.0,
		Evidence:      fmt.Sprintf("%d denied requests in %d seconds", n, int(d.cfg.Window.Seconds())),
		Raw: map[string]interface{}{
			"source_ip":      ev.SourceIP,
			"destination_ip": ev.DestinationIP,
			"count":          n,
		},
	}}
}

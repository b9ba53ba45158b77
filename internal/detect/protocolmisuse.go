package detect

import (
	"fmt"
	"time"

	"github.com/sentra/siem/internal/event"
)

const RuleProtocolMisuse = "Suspicious Protocol Misuse"

// unusualProtocols are transports that should be rare on the monitored edge.
var unusualProtocols = map[string]bool{
	"icmp":   true,
	"udp":    true,
	"ftp":    true,
	"telnet": true,
}

// ProtocolMisuseConfig tunes the protocol-misuse rule. Defaults: threshold 3,
// window 5m, dedupe 5m, cadence 40s.
type ProtocolMisuseConfig struct {
	Threshold int
	Window    time.Duration
	Dedupe    time.Duration
	Cadence   time.Duration
}

func (c *ProtocolMisuseConfig) withDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 3
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

// ProtocolMisuse counts firewall events over unusual transports per
// (source, protocol) pair.
type ProtocolMisuse struct {
	cfg       ProtocolMisuseConfig
	whitelist *Whitelist

	usage  map[string]*tsWindow // "src|proto" -> timestamps
	dedupe *deduper
}

func NewProtocolMisuse(cfg ProtocolMisuseConfig, wl *Whitelist) *ProtocolMisuse {
	cfg.withDefaults()
	d := &ProtocolMisuse{cfg: cfg, whitelist: wl, dedupe: newDeduper(cfg.Dedupe)}
	d.Reset()
	return d
}

func (d *ProtocolMisuse) Name() string           { return "protocol_misuse" }
func (d *ProtocolMisuse) Cadence() time.Duration { return d.cfg.Cadence }
func (d *ProtocolMisuse) Window() time.Duration  { return d.cfg.Window }
func (d *ProtocolMisuse) Categories() []string   { return []string{event.CategoryFirewall} }

func (d *ProtocolMisuse) Reset() {
	d.usage = make(map[string]*tsWindow)
}

func (d *ProtocolMisuse) Process(ev event.Event) []event.Alert {
	if !ev.Category.Has(event.CategoryFirewall) || !unusualProtocols[ev.Protocol] {
		return nil
	}
	if ev.SourceIP == "" || d.whitelist.Contains(ev.SourceIP) {
		return nil
	}
	ts := ev.Timestamp

	key := ev.SourceIP + "|" + ev.Protocol
	w, ok := d.usage[key]
	if !ok {
		w = &tsWindow{}
		d.usage[key] = w
	}
	w.add(ts, d.cfg.Window)

	n := w.count()
	if n < d.cfg.Threshold {
		return nil
	}

	id := RuleProtocolMisuse + "|" + key
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
		Rule:          RuleProtocolMisuse,
		SourceIP:      ev.SourceIP,
		DestinationIP: ev.DestinationIP,
		AttemptCount:  n,
		Severity:      severity,
		Technique:     event.TechniqueProtocolMisuse,
		Score:         score,
		Evidence: fmt.Sprintf("%d attempts using unusual protocol '%s' in last %d minutes",
			n, ev.Protocol, int(d.cfg.Window.Minutes())),
		Raw: map[string]interface{}{
			"source_ip":      ev.SourceIP,
			"destination_ip": ev.DestinationIP,
			"protocol":       ev.Protocol,
			"count":          n,
		},
	}}
}

package detect

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentra/siem/internal/event"
)

const RuleEndpointScan = "Hard Endpoint Scanning"

// sensitiveEndpoints are path fragments attackers probe for. Matching is by
// substring on the lowercased request path.
var sensitiveEndpoints = []string{
	"/admin", "/login", "/config", "/backup", "/setup", "/db", "/phpmyadmin",
}

// EndpointScanConfig tunes the endpoint-scan rule. Defaults: threshold 5
// distinct sensitive paths, window 5m, dedupe 5m, cadence 40s.
type EndpointScanConfig struct {
	Threshold int
	Window    time.Duration
	Dedupe    time.Duration
	Cadence   time.Duration
}

func (c *EndpointScanConfig) withDefaults() {
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

// EndpointScan flags sources walking the set of sensitive web paths. The
// trigger counts distinct paths, so hammering /login alone never fires it.
type EndpointScan struct {
	cfg       EndpointScanConfig
	whitelist *Whitelist

	hits   map[string]*taggedWindow // src_ip -> (ts, path)
	dedupe *deduper
}

func NewEndpointScan(cfg EndpointScanConfig, wl *Whitelist) *EndpointScan {
	cfg.withDefaults()
	d := &EndpointScan{cfg: cfg, whitelist: wl, dedupe: newDeduper(cfg.Dedupe)}
	d.Reset()
	return d
}

func (d *EndpointScan) Name() string           { return "endpoint_scan" }
func (d *EndpointScan) Cadence() time.Duration { return d.cfg.Cadence }
func (d *EndpointScan) Window() time.Duration  { return d.cfg.Window }
func (d *EndpointScan) Categories() []string   { return []string{event.CategoryWeb} }

func (d *EndpointScan) Reset() {
	d.hits = make(map[string]*taggedWindow)
}

func (d *EndpointScan) Process(ev event.Event) []event.Alert {
	if !ev.Category.Has(event.CategoryWeb) {
		return nil
	}
	if ev.SourceIP == "" || d.whitelist.Contains(ev.SourceIP) {
		return nil
	}
	path := strings.ToLower(ev.URLPath)
	sensitive := false
	for _, se := range sensitiveEndpoints {
		if strings.Contains(path, se) {
			sensitive = true
			break
		}
	}
	if !sensitive {
		return nil
	}
	ts := ev.Timestamp

	w, ok := d.hits[ev.SourceIP]
	if !ok {
		w = &taggedWindow{}
		d.hits[ev.SourceIP] = w
	}
	w.add(ts, path, d.cfg.Window)

	unique := w.uniqueWithin(ts, d.cfg.Window)
	if len(unique) < d.cfg.Threshold {
		return nil
	}

	id := RuleEndpointScan + "|" + ev.SourceIP
	if d.dedupe.suppressed(id, ts) {
		return nil
	}
	d.dedupe.mark(id, ts)

	return []event.Alert{{
		Timestamp:    ts,
		Rule:         RuleEndpointScan,
		UserName:     ev.Username,
		SourceIP:     ev.SourceIP,
		AttemptCount: len(unique),
		Severity:     event.SeverityHigh,
		Technique:    event.TechniqueEndpointScanning,
		Score:        Score(len(unique), d.cfg.Threshold, 5),
		Evidence: fmt.Sprintf("%d distinct sensitive endpoints probed in last %d minutes",
			len(unique), int(d.cfg.Window.Minutes())),
		Raw: map[string]interface{}{
			"source_ip": ev.SourceIP,
			"paths":     sortedTags(unique),
		},
	}}
}

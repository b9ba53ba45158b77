package detect

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sentra/siem/internal/event"
)

// Port scanning rule names.
const (
	RulePerDestScan       = "Per-Destination Port Scan"
	RuleDistributedScan   = "Distributed Scan (many destinations)"
	RuleCrossDstDiversity = "Cross-Destination High Port Diversity"
	RuleStealthyScan      = "Stealthy Slow Scan"
)

// PortScanConfig tunes the four port-scan sub-rules.
type PortScanConfig struct {
	// Many unique ports against a single destination in a short burst.
	PerDstThreshold int
	PerDstWindow    time.Duration

	// One source touching many distinct destinations.
	DistributedThreshold int
	DistributedWindow    time.Duration

	// Port diversity while rotating destinations.
	CrossDstThreshold int
	CrossDstWindow    time.Duration

	// Low and slow: few ports, long horizon, persistent attempts.
	StealthThreshold int
	StealthWindow    time.Duration
	StealthMinUnique int

	Dedupe  time.Duration
	Cadence time.Duration
}

func (c *PortScanConfig) withDefaults() {
	if c.PerDstThreshold <= 0 {
		c.PerDstThreshold = 20
	}
	if c.PerDstWindow <= 0 {
		c.PerDstWindow = 60 * time.Second
	}
	if c.DistributedThreshold <= 0 {
		c.DistributedThreshold = 50
	}
	if c.DistributedWindow <= 0 {
		c.DistributedWindow = 300 * time.Second
	}
	if c.CrossDstThreshold <= 0 {
		c.CrossDstThreshold = 100
	}
	if c.CrossDstWindow <= 0 {
		c.CrossDstWindow = 600 * time.Second
	}
	if c.StealthThreshold <= 0 {
		c.StealthThreshold = 10
	}
	if c.StealthWindow <= 0 {
		c.StealthWindow = 3600 * time.Second
	}
	if c.StealthMinUnique <= 0 {
		c.StealthMinUnique = 5
	}
	if c.Dedupe <= 0 {
		c.Dedupe = 5 * time.Minute
	}
	if c.Cadence <= 0 {
		c.Cadence = 40 * time.Second
	}
}

// PortScan tracks, per source, the ports attempted against each destination,
// the set of destinations touched, and the ports attempted across all
// destinations. Four sub-rules share this state.
type PortScan struct {
	cfg       PortScanConfig
	whitelist *Whitelist

	perDst map[string]map[string]*taggedWindow // src -> dst -> (ts, port)
	dsts   map[string]*taggedWindow            // src -> (ts, dst)
	ports  map[string]*taggedWindow            // src -> (ts, port) across dsts
	dedupe *deduper
}

func NewPortScan(cfg PortScanConfig, wl *Whitelist) *PortScan {
	cfg.withDefaults()
	d := &PortScan{cfg: cfg, whitelist: wl, dedupe: newDeduper(cfg.Dedupe)}
	d.Reset()
	return d
}

func (d *PortScan) Name() string           { return "port_scan" }
func (d *PortScan) Cadence() time.Duration { return d.cfg.Cadence }
func (d *PortScan) Window() time.Duration  { return d.maxWindow() }
func (d *PortScan) Categories() []string {
	return []string{event.CategoryFirewall, event.CategoryNetwork}
}

func (d *PortScan) maxWindow() time.Duration {
	max := d.cfg.PerDstWindow
	for _, w := range []time.Duration{d.cfg.DistributedWindow, d.cfg.CrossDstWindow, d.cfg.StealthWindow} {
		if w > max {
			max = w
		}
	}
	return max
}

func (d *PortScan) Reset() {
	d.perDst = make(map[string]map[string]*taggedWindow)
	d.dsts = make(map[string]*taggedWindow)
	d.ports = make(map[string]*taggedWindow)
}

func (d *PortScan) Process(ev event.Event) []event.Alert {
	if !ev.Category.Has(event.CategoryFirewall) && !ev.Category.Has(event.CategoryNetwork) {
		return nil
	}
	if ev.SourceIP == "" || ev.DestinationIP == "" || ev.DestinationPort == 0 {
		return nil
	}
	if d.whitelist.Contains(ev.SourceIP) {
		return nil
	}
	ts := ev.Timestamp
	src, dst := ev.SourceIP, ev.DestinationIP
	port := strconv.Itoa(ev.DestinationPort)

	// Housekeeping trims every deque to the longest window before evaluation.
	maxW := d.maxWindow()

	byDst, ok := d.perDst[src]
	if !ok {
		byDst = make(map[string]*taggedWindow)
		d.perDst[src] = byDst
	}
	dw, ok := byDst[dst]
	if !ok {
		dw = &taggedWindow{}
		byDst[dst] = dw
	}
	dw.add(ts, port, maxW)

	sd, ok := d.dsts[src]
	if !ok {
		sd = &taggedWindow{}
		d.dsts[src] = sd
	}
	sd.add(ts, dst, maxW)

	sp, ok := d.ports[src]
	if !ok {
		sp = &taggedWindow{}
		d.ports[src] = sp
	}
	sp.add(ts, port, maxW)

	var alerts []event.Alert

	// Classic burst scan against one destination.
	if unique := dw.uniqueWithin(ts, d.cfg.PerDstWindow); len(unique) >= d.cfg.PerDstThreshold {
		id := RulePerDestScan + "|" + src + "|" + dst
		if !d.dedupe.suppressed(id, ts) {
			score := Score(len(unique), d.cfg.PerDstThreshold, 5)
			alerts = append(alerts, d.makeAlert(RulePerDestScan, src, dst, ev, ts, score, len(unique),
				fmt.Sprintf("%d unique ports in last %ds", len(unique), int(d.cfg.PerDstWindow.Seconds())),
				map[string]interface{}{"ports": sortedTags(unique)}))
			d.dedupe.mark(id, ts)
		}
	}

	// Many distinct destinations, any port.
	if unique := sd.uniqueWithin(ts, d.cfg.DistributedWindow); len(unique) >= d.cfg.DistributedThreshold {
		id := RuleDistributedScan + "|" + src + "|any"
		if !d.dedupe.suppressed(id, ts) {
			score := Score(len(unique), d.cfg.DistributedThreshold, 5)
			alerts = append(alerts, d.makeAlert(RuleDistributedScan, src, "", ev, ts, score, len(unique),
				fmt.Sprintf("%d distinct destinations in last %ds", len(unique), int(d.cfg.DistributedWindow.Seconds())),
				map[string]interface{}{"unique_dsts": sortedTags(unique)}))
			d.dedupe.mark(id, ts)
		}
	}

	// High port diversity while rotating destinations.
	if unique := sp.uniqueWithin(ts, d.cfg.CrossDstWindow); len(unique) >= d.cfg.CrossDstThreshold {
		id := RuleCrossDstDiversity + "|" + src + "|any"
		if !d.dedupe.suppressed(id, ts) {
			score := Score(len(unique), d.cfg.CrossDstThreshold, 5)
			alerts = append(alerts, d.makeAlert(RuleCrossDstDiversity, src, "", ev, ts, score, len(unique),
				fmt.Sprintf("%d unique ports across destinations in last %ds", len(unique), int(d.cfg.CrossDstWindow.Seconds())),
				map[string]interface{}{"ports": sortedTags(unique)}))
			d.dedupe.mark(id, ts)
		}
	}

	// Low-volume persistent probing. The persistence score rewards breadth
	// and repetition over a long horizon.
	if slowPorts := dw.uniqueWithin(ts, d.cfg.StealthWindow); len(slowPorts) >= d.cfg.StealthMinUnique {
		attempts := dw.countWithin(ts, d.cfg.StealthWindow)
		persistence := math.Sqrt(float64(len(slowPorts))) * math.Log1p(float64(attempts))
		if len(slowPorts) >= d.cfg.StealthThreshold || persistence > float64(d.cfg.StealthThreshold)/2 {
			id := RuleStealthyScan + "|" + src + "|" + dst
			if !d.dedupe.suppressed(id, ts) {
				alerts = append(alerts, d.makeAlert(RuleStealthyScan, src, dst, ev, ts, persistence, len(slowPorts),
					fmt.Sprintf("%d unique ports over %ds (attempts=%d)", len(slowPorts), int(d.cfg.StealthWindow.Seconds()), attempts),
					map[string]interface{}{"ports": sortedTags(slowPorts), "attempts": attempts}))
				d.dedupe.mark(id, ts)
			}
		}
	}

	return alerts
}

func (d *PortScan) makeAlert(rule, src, dst string, ev event.Event, ts time.Time,
	score float64, count int, evidence string, extra map[string]interface{}) event.Alert {

	raw := map[string]interface{}{
		"source_ip": src,
		"protocol":  ev.Protocol,
	}
	if dst != "" {
		raw["destination_ip"] = dst
	}
	for k, v := range extra {
		raw[k] = v
	}
	return event.Alert{
		Timestamp:     ts,
		Rule:          rule,
		SourceIP:      src,
		DestinationIP: dst,
		AttemptCount:  count,
		Severity:      event.SeverityFromScore(score),
		Technique:     event.TechniquePortScanning,
		Score:         score,
		Evidence:      evidence,
		Raw:           raw,
	}
}

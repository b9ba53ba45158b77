package detect

import (
	"fmt"
	"time"

	"github.com/sentra/siem/internal/event"
)

// Rule names as persisted in the alerts table.
const (
	RuleBruteForce         = "Brute Force (user+IP)"
	RuleCredentialStuffing = "Credential Stuffing"
	RuleAccountTargeted    = "Account Targeted Brute Force"
)

// FailedLoginConfig tunes the failed-login family. Zero values take the
// defaults: threshold 5, window 5m, dedupe 5m, cadence 400s.
type FailedLoginConfig struct {
	Threshold int
	Window    time.Duration
	Dedupe    time.Duration
	Cadence   time.Duration
}

func (c *FailedLoginConfig) withDefaults() {
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
		c.Cadence = 400 * time.Second
	}
}

// FailedLogin runs three concurrent sub-rules over authentication failures:
// classic brute force on (user, ip), credential stuffing on ip across many
// users, and a targeted account attacked from many sources.
type FailedLogin struct {
	cfg       FailedLoginConfig
	whitelist *Whitelist

	userIP  map[string]*tsWindow     // "user|ip" -> failure timestamps
	perIP   map[string]*taggedWindow // ip -> (ts, user)
	perUser map[string]*taggedWindow // user -> (ts, ip)
	dedupe  *deduper
}

func NewFailedLogin(cfg FailedLoginConfig, wl *Whitelist) *FailedLogin {
	cfg.withDefaults()
	d := &FailedLogin{cfg: cfg, whitelist: wl, dedupe: newDeduper(cfg.Dedupe)}
	d.Reset()
	return d
}

func (d *FailedLogin) Name() string           { return "failed_login" }
func (d *FailedLogin) Cadence() time.Duration { return d.cfg.Cadence }
func (d *FailedLogin) Window() time.Duration  { return d.cfg.Window }
func (d *FailedLogin) Categories() []string   { return []string{event.CategoryAuthentication} }

func (d *FailedLogin) Reset() {
	d.userIP = make(map[string]*tsWindow)
	d.perIP = make(map[string]*taggedWindow)
	d.perUser = make(map[string]*taggedWindow)
}

func (d *FailedLogin) Process(ev event.Event) []event.Alert {
	if !ev.Category.Has(event.CategoryAuthentication) || ev.Outcome != "failure" {
		return nil
	}
	if ev.SourceIP == "" || d.whitelist.Contains(ev.SourceIP) {
		return nil
	}
	ts := ev.Timestamp
	user, ip := ev.Username, ev.SourceIP

	pairKey := user + "|" + ip
	uw, ok := d.userIP[pairKey]
	if !ok {
		uw = &tsWindow{}
		d.userIP[pairKey] = uw
	}
	uw.add(ts, d.cfg.Window)

	iw, ok := d.perIP[ip]
	if !ok {
		iw = &taggedWindow{}
		d.perIP[ip] = iw
	}
	iw.add(ts, user, d.cfg.Window)

	aw, ok := d.perUser[user]
	if !ok {
		aw = &taggedWindow{}
		d.perUser[user] = aw
	}
	aw.add(ts, ip, d.cfg.Window)

	var alerts []event.Alert

	// Brute force against one account from one source.
	if n := uw.count(); n >= d.cfg.Threshold {
		id := RuleBruteForce + "|" + pairKey
		if !d.dedupe.suppressed(id, ts) {
			alerts = append(alerts, event.Alert{
				Timestamp:    ts,
				Rule:         RuleBruteForce,
				UserName:     user,
				SourceIP:     ip,
				AttemptCount: n,
				Severity:     event.SeverityHigh,
				Technique:    event.TechniqueBruteForce,
				Score:        Score(n, d.cfg.Threshold, 5),
				Evidence:     fmt.Sprintf("%d failed logins for %s from %s in last %s", n, user, ip, d.cfg.Window),
				Raw:          map[string]interface{}{"user": user, "source_ip": ip, "count": n},
			})
			d.dedupe.mark(id, ts)
		}
	}

	// One source spraying many accounts.
	if n := iw.count(); n >= d.cfg.Threshold {
		users := iw.uniqueWithin(ts, d.cfg.Window)
		if len(users) >= 3 {
			id := RuleCredentialStuffing + "|" + ip
			if !d.dedupe.suppressed(id, ts) {
				alerts = append(alerts, event.Alert{
					Timestamp:    ts,
					Rule:         RuleCredentialStuffing,
					UserName:     "Multiple",
					SourceIP:     ip,
					AttemptCount: n,
					Severity:     event.SeverityCritical,
					Technique:    event.TechniqueCredentialStuffing,
					Score:        Score(n, d.cfg.Threshold, 5),
					Evidence:     fmt.Sprintf("%d failures against %d accounts from %s in last %s", n, len(users), ip, d.cfg.Window),
					Raw:          map[string]interface{}{"source_ip": ip, "count": n, "unique_users": sortedTags(users)},
				})
				d.dedupe.mark(id, ts)
			}
		}
	}

	// One account hammered from many sources.
	if n := aw.count(); n >= d.cfg.Threshold {
		ips := aw.uniqueWithin(ts, d.cfg.Window)
		if len(ips) >= 3 {
			id := RuleAccountTargeted + "|" + user
			if !d.dedupe.suppressed(id, ts) {
				alerts = append(alerts, event.Alert{
					Timestamp:    ts,
					Rule:         RuleAccountTargeted,
					UserName:     user,
					SourceIP:     "Multiple",
					AttemptCount: n,
					Severity:     event.SeverityHigh,
					Technique:    event.TechniqueDistributedBrute,
					Score:        Score(n, d.cfg.Threshold, 5),
					Evidence:     fmt.Sprintf("%d failures against %s from %d sources in last %s", n, user, len(ips), d.cfg.Window),
					Raw:          map[string]interface{}{"user": user, "count": n, "unique_sources": sortedTags(ips)},
				})
				d.dedupe.mark(id, ts)
			}
		}
	}
	return alerts
}

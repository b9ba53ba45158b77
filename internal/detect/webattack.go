package detect

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sentra/siem/internal/event"
)

// Web attack rule names.
const (
	RuleSQLInjection = "Suspicious Web Activity - SQLi"
	RuleXSS          = "Advanced XSS Detected"
)

// sqliRegex matches classic injection fragments plus their percent-encoded
// forms, so payloads slip through even when decoding fails.
var sqliRegex = regexp.MustCompile(`(?i)(' OR '1'='1|union select|--|'; drop|or 1=1|select .* from|exec(ute)?\s|benchmark\s*\(|waitfor delay|/\*|\*/|%27|%22|%3D|%2D%2D|%3B|%2F%2A|%2A)`)

// xssRegex covers script tags, inline handlers, iframes and cookie theft.
var xssRegex = regexp.MustCompile(`(?i)(<script.*?>.*?</script>|javascript:|on\w+\s*=|<iframe.*?>|<img.*?on\w+\s*=.*?>|alert\s*\(.*?\)|document\.cookie)`)

// WebAttackConfig tunes a pattern-match rule over web events. SQLi defaults
// to threshold 1 (one decoded hit is enough), XSS to 3.
type WebAttackConfig struct {
	Threshold int
	Window    time.Duration
	Dedupe    time.Duration
	Cadence   time.Duration
}

func (c *WebAttackConfig) withDefaults(threshold int) {
	if c.Threshold <= 0 {
		c.Threshold = threshold
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

// webAttack is the shared machinery behind the SQLi and XSS rules: decode
// the request, match the pattern set, rate-limit per source.
type webAttack struct {
	rule      string
	technique string
	slug      string
	pattern   *regexp.Regexp
	cfg       WebAttackConfig
	whitelist *Whitelist

	// gated rules stay silent below threshold; ungated rules emit on every
	// match and use the threshold only for severity escalation.
	gated bool

	attempts map[string]*tsWindow // src_ip -> match timestamps
	dedupe   *deduper
}

// NewSQLInjection builds the SQLi rule.
func NewSQLInjection(cfg WebAttackConfig, wl *Whitelist) Detector {
	cfg.withDefaults(1)
	d := &webAttack{
		rule:      RuleSQLInjection,
		technique: event.TechniqueSQLInjection,
		slug:      "sqli",
		pattern:   sqliRegex,
		cfg:       cfg,
		whitelist: wl,
		gated:     true,
		dedupe:    newDeduper(cfg.Dedupe),
	}
	d.Reset()
	return d
}

// NewXSS builds the XSS rule.
func NewXSS(cfg WebAttackConfig, wl *Whitelist) Detector {
	cfg.withDefaults(3)
	d := &webAttack{
		rule:      RuleXSS,
		technique: event.TechniqueXSS,
		slug:      "xss",
		pattern:   xssRegex,
		cfg:       cfg,
		whitelist: wl,
		dedupe:    newDeduper(cfg.Dedupe),
	}
	d.Reset()
	return d
}

func (d *webAttack) Name() string           { return d.slug }
func (d *webAttack) Cadence() time.Duration { return d.cfg.Cadence }
func (d *webAttack) Window() time.Duration  { return d.cfg.Window }
func (d *webAttack) Categories() []string   { return []string{event.CategoryWeb} }

func (d *webAttack) Reset() {
	d.attempts = make(map[string]*tsWindow)
}

// requestInput reassembles the attacker-controlled text for an event: the
// full URL and any request body, both raw and percent-decoded.
func requestInput(ev event.Event) string {
	parts := []string{ev.URLFull, ev.URLPath, ev.Message}
	if http, ok := ev.Raw["http"].(map[string]interface{}); ok {
		if req, ok := http["request"].(map[string]interface{}); ok {
			if body, ok := req["body"].(string); ok {
				parts = append(parts, body)
			}
		}
	}
	combined := strings.ToLower(strings.Join(parts, " "))
	if decoded, err := url.QueryUnescape(combined); err == nil {
		combined += " " + decoded
	}
	return combined
}

func (d *webAttack) Process(ev event.Event) []event.Alert {
	if !ev.Category.Has(event.CategoryWeb) {
		return nil
	}
	if ev.SourceIP == "" || d.whitelist.Contains(ev.SourceIP) {
		return nil
	}
	if !d.pattern.MatchString(requestInput(ev)) {
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
	if d.gated && n < d.cfg.Threshold {
		return nil
	}

	id := d.rule + "|" + ev.SourceIP
	if d.dedupe.suppressed(id, ts) {
		return nil
	}
	d.dedupe.mark(id, ts)

	severity := event.SeverityHigh
	if n >= d.cfg.Threshold {
		severity = event.SeverityCritical
	}
	return []event.Alert{{
		Timestamp:    ts,
		Rule:         d.rule,
		UserName:     ev.Username,
		SourceIP:     ev.SourceIP,
		AttemptCount: n,
		Severity:     severity,
		Technique:    d.technique,
		Score:        Score(n, d.cfg.Threshold, 5),
		Evidence: fmt.Sprintf("%d suspicious requests matched in last %d minutes",
			n, int(d.cfg.Window.Minutes())),
		Raw: map[string]interface{}{
			"source_ip":   ev.SourceIP,
			"http_method": ev.HTTPMethod,
			"url":         ev.URLFull,
			"count":       n,
		},
	}}
}

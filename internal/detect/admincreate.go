package detect

import (
	"strings"
	"time"

	"github.com/sentra/siem/internal/event"
)

const RuleAdminCreation = "Suspicious Admin Account Creation"

// adminKeywords mark an authentication success as an admin-granting action.
var adminKeywords = []string{
	"new admin", "added to admin group", "grant admin", "privilege escalation", "sudo useradd",
}

// AdminCreateConfig tunes the admin-creation rule. Defaults: max 1 creation
// per creator in 5m, dedupe 1h since these alerts should be rare.
type AdminCreateConfig struct {
	KnownAdmins  []string
	MaxCreations int
	Window       time.Duration
	Dedupe       time.Duration
	Cadence      time.Duration
}

func (c *AdminCreateConfig) withDefaults() {
	if c.MaxCreations <= 0 {
		c.MaxCreations = 1
	}
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.Dedupe <= 0 {
		c.Dedupe = time.Hour
	}
	if c.Cadence <= 0 {
		c.Cadence = 40 * time.Second
	}
}

// AdminCreate watches successful authentication events for admin-granting
// messages. A creator outside the known-admin set is CRITICAL immediately;
// a known admin creating more than MaxCreations in the window is too.
type AdminCreate struct {
	cfg       AdminCreateConfig
	whitelist *Whitelist
	known     map[string]bool

	creations map[string]*tsWindow // creator -> timestamps
	dedupe    *deduper
}

func NewAdminCreate(cfg AdminCreateConfig, wl *Whitelist) *AdminCreate {
	cfg.withDefaults()
	known := make(map[string]bool, len(cfg.KnownAdmins))
	for _, a := range cfg.KnownAdmins {
		known[strings.ToLower(a)] = true
	}
	d := &AdminCreate{cfg: cfg, whitelist: wl, known: known, dedupe: newDeduper(cfg.Dedupe)}
	d.Reset()
	return d
}

func (d *AdminCreate) Name() string           { return "admin_creation" }
func (d *AdminCreate) Cadence() time.Duration { return d.cfg.Cadence }
func (d *AdminCreate) Window() time.Duration  { return d.cfg.Window }
func (d *AdminCreate) Categories() []string   { return []string{event.CategoryAuthentication} }

func (d *AdminCreate) Reset() {
	d.creations = make(map[string]*tsWindow)
}

func (d *AdminCreate) Process(ev event.Event) []event.Alert {
	if !ev.Category.Has(event.CategoryAuthentication) || ev.Outcome != "success" {
		return nil
	}
	if ev.SourceIP != "" && d.whitelist.Contains(ev.SourceIP) {
		return nil
	}
	msg := strings.ToLower(ev.Message)
	matched := false
	for _, k := range adminKeywords {
		if strings.Contains(msg, k) {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}
	ts := ev.Timestamp
	creator := ev.Username

	w, ok := d.creations[creator]
	if !ok {
		w = &tsWindow{}
		d.creations[creator] = w
	}
	w.add(ts, d.cfg.Window)
	recent := w.count()

	severity := event.SeverityHigh
	switch {
	case !d.known[strings.ToLower(creator)]:
		severity = event.SeverityCritical
	case recent > d.cfg.MaxCreations:
		severity = event.SeverityCritical
	}

	id := RuleAdminCreation + "|" + creator
	if d.dedupe.suppressed(id, ts) {
		return nil
	}
	d.dedupe.mark(id, ts)

	score := 5.0
	if severity == event.SeverityCritical {
		score = 9.0
	}
	return []event.Alert{{
		Timestamp:    ts,
		Rule:         RuleAdminCreation,
		UserName:     creator,
		SourceIP:     ev.SourceIP,
		AttemptCount: recent,
		Severity:     severity,
		Technique:    event.TechniquePrivilegeEscalation,
		Score:        score,
		Evidence:     "Admin-granting action by " + creator + ": " + truncateEvidence(ev.Message, 120),
		Raw: map[string]interface{}{
			"creator":   creator,
			"source_ip": ev.SourceIP,
			"message":   ev.Message,
			"count":     recent,
		},
	}}
}

func truncateEvidence(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

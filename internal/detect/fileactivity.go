package detect

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sentra/siem/internal/event"
)

// File activity rule names.
const (
	RuleMassEncryption  = "Mass File Encryption Detected"
	RuleSensitiveUpload = "Sensitive File Upload"
)

var (
	ransomwareExtensions = []string{".locked", ".encrypted", ".crypt"}
	sensitiveExtensions  = []string{".db", ".csv", ".bak", ".sql"}
)

// FileActivityConfig tunes both file sub-rules. Defaults: 20 suspicious
// renames in 5m for mass encryption (dedupe 1h), single-event trigger for
// uploads (dedupe 5m).
type FileActivityConfig struct {
	FileThreshold    int
	Window           time.Duration
	EncryptionDedupe time.Duration
	UploadDedupe     time.Duration
	EntropyThreshold float64
	Cadence          time.Duration
}

func (c *FileActivityConfig) withDefaults() {
	if c.FileThreshold <= 0 {
		c.FileThreshold = 20
	}
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.EncryptionDedupe <= 0 {
		c.EncryptionDedupe = time.Hour
	}
	if c.UploadDedupe <= 0 {
		c.UploadDedupe = 5 * time.Minute
	}
	if c.EntropyThreshold <= 0 {
		c.EntropyThreshold = 4.0
	}
	if c.Cadence <= 0 {
		c.Cadence = 40 * time.Second
	}
}

// FileActivity runs two sub-rules: a burst of ransomware-looking renames per
// (user, ip), and any sensitive file pushed to a non-private destination.
type FileActivity struct {
	cfg       FileActivityConfig
	whitelist *Whitelist

	modifications map[string]*tsWindow // "user|ip" -> rename timestamps
	encDedupe     *deduper
	uploadDedupe  *deduper
}

func NewFileActivity(cfg FileActivityConfig, wl *Whitelist) *FileActivity {
	cfg.withDefaults()
	d := &FileActivity{
		cfg:          cfg,
		whitelist:    wl,
		encDedupe:    newDeduper(cfg.EncryptionDedupe),
		uploadDedupe: newDeduper(cfg.UploadDedupe),
	}
	d.Reset()
	return d
}

func (d *FileActivity) Name() string           { return "file_activity" }
func (d *FileActivity) Cadence() time.Duration { return d.cfg.Cadence }
func (d *FileActivity) Window() time.Duration  { return d.cfg.Window }
func (d *FileActivity) Categories() []string {
	return []string{event.CategoryFile, event.CategoryNetwork}
}

func (d *FileActivity) Reset() {
	d.modifications = make(map[string]*tsWindow)
}

// fileName resolves the event's filename, falling back to the basename of
// the path. Lowercased for extension checks.
func fileName(ev event.Event) string {
	name := strings.TrimSpace(ev.FileName)
	if name == "" && ev.FilePath != "" {
		name = path.Base(ev.FilePath)
	}
	return strings.ToLower(name)
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

func (d *FileActivity) Process(ev event.Event) []event.Alert {
	if ev.SourceIP != "" && d.whitelist.Contains(ev.SourceIP) {
		return nil
	}
	var alerts []event.Alert
	if ev.Category.Has(event.CategoryFile) {
		alerts = append(alerts, d.checkMassEncryption(ev)...)
	}
	if ev.Category.Has(event.CategoryNetwork) {
		alerts = append(alerts, d.checkSensitiveUpload(ev)...)
	}
	return alerts
}

func (d *FileActivity) checkMassEncryption(ev event.Event) []event.Alert {
	name := fileName(ev)
	if name == "" {
		return nil
	}
	if !hasAnySuffix(name, ransomwareExtensions) && ShannonEntropy(name) <= d.cfg.EntropyThreshold {
		return nil
	}
	ts := ev.Timestamp
	key := ev.Username + "|" + ev.SourceIP

	w, ok := d.modifications[key]
	if !ok {
		w = &tsWindow{}
		d.modifications[key] = w
	}
	w.add(ts, d.cfg.Window)

	n := w.count()
	if n < d.cfg.FileThreshold {
		return nil
	}

	id := RuleMassEncryption + "|" + key
	if d.encDedupe.suppressed(id, ts) {
		return nil
	}
	d.encDedupe.mark(id, ts)

	return []event.Alert{{
		Timestamp:    ts,
		Rule:         RuleMassEncryption,
		UserName:     ev.Username,
		SourceIP:     ev.SourceIP,
		AttemptCount: n,
		Severity:     event.SeverityCritical,
		Technique:    event.TechniqueRansomware,
		Score:        Score(n, d.cfg.FileThreshold, 5),
		Evidence: fmt.Sprintf("%d suspicious file renames in last %d minutes, e.g. %s",
			n, int(d.cfg.Window.Minutes()), name),
		Raw: map[string]interface{}{
			"user":         ev.Username,
			"source_ip":    ev.SourceIP,
			"count":        n,
			"example_file": name,
		},
	}}
}

func (d *FileActivity) checkSensitiveUpload(ev event.Event) []event.Alert {
	name := fileName(ev)
	if name == "" || !hasAnySuffix(name, sensitiveExtensions) {
		return nil
	}
	if ev.DestinationIP == "" || isPrivateIP(ev.DestinationIP) {
		return nil
	}
	ts := ev.Timestamp

	id := RuleSensitiveUpload + "|" + ev.Username + "|" + ev.SourceIP + "|" + ev.DestinationIP
	if d.uploadDedupe.suppressed(id, ts) {
		return nil
	}
	d.uploadDedupe.mark(id, ts)

	return []event.Alert{{
		Timestamp:     ts,
		Rule:          RuleSensitiveUpload,
		UserName:      ev.Username,
		SourceIP:      ev.SourceIP,
		DestinationIP: ev.DestinationIP,
		AttemptCount:  1,
		Severity:      event.SeverityHigh,
		Technique:     event.TechniqueDataExfiltration,
		Score:         6.0,
		Evidence:      fmt.Sprintf("Sensitive file %s sent to external host %s", name, ev.DestinationIP),
		Raw: map[string]interface{}{
			"user":           ev.Username,
			"source_ip":      ev.SourceIP,
			"destination_ip": ev.DestinationIP,
			"file":           name,
		},
	}}
}

// Package normalize turns raw log lines and structured payloads into Event
// records. Parsers run in a fixed order: firewall key=value, SSH auth
// failure, web access, then structured JSON. The first match wins; a line no
// parser recognizes yields nil.
package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sentra/siem/internal/event"
)

var (
	sshFailedRe = regexp.MustCompile(`Failed password for (\w+) from ([\d.]+) port (\d+)`)
	webAccessRe = regexp.MustCompile(`([\d.]+) - - \[.*?\] "(GET|POST|PUT|DELETE) (.*?) HTTP/[\d.]+" (\d{3}) (\d+).*"(.*?)"`)
	kvPairRe    = regexp.MustCompile(`(\w+)=(\S+)`)
)

// Normalizer parses lines into events and enriches them with best-effort
// reverse DNS and GeoIP lookups.
type Normalizer struct {
	enricher *Enricher
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a normalizer. The enricher may be nil, which disables
// enrichment entirely.
func New(enricher *Enricher, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		enricher: enricher,
		logger:   logger.With("component", "normalizer"),
		now:      time.Now,
	}
}

// Line parses a single raw log line. Returns nil when no parser matches.
// Panics inside a parser are contained to the line and logged.
func (n *Normalizer) Line(line string) (ev *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Debug("parser panic contained", "error", fmt.Sprint(r), "line", truncate(line, 200))
			ev = nil
		}
	}()

	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil
	}

	for _, parse := range []func(string) *event.Event{
		n.parseFirewall,
		n.parseSSHAuth,
		n.parseWebAccess,
		n.parseStructured,
	} {
		if ev := parse(line); ev != nil {
			n.finalize(ev)
			return ev
		}
	}
	return nil
}

// Record validates a pre-structured payload against the Event schema and
// normalizes it the same way a parsed line would be.
func (n *Normalizer) Record(ev *event.Event) (*event.Event, error) {
	if len(ev.Category) == 0 {
		return nil, fmt.Errorf("event has no category")
	}
	n.finalize(ev)
	return ev, nil
}

// parseFirewall handles key=value firewall lines, e.g.
// "2025-09-02T15:21:30Z fw01 action=DENY src=42.1.2.3 dst=10.0.0.5 dport=443 proto=tcp".
// The action key is required; everything else is optional.
func (n *Normalizer) parseFirewall(line string) *event.Event {
	pairs := kvPairRe.FindAllStringSubmatch(line, -1)
	if len(pairs) == 0 {
		return nil
	}
	kv := make(map[string]string, len(pairs))
	for _, p := range pairs {
		kv[strings.ToLower(p[1])] = p[2]
	}
	action, ok := kv["action"]
	if !ok {
		return nil
	}

	ev := &event.Event{
		Category: event.Categories{event.CategoryFirewall},
		Action:   strings.ToLower(action),
		Outcome:  strings.ToLower(action),
		Message:  strings.TrimSpace(line),
		Raw:      map[string]interface{}{"fields": kv},
	}
	if src, ok := kv["src"]; ok {
		ev.SourceIP = CanonicalIP(src)
	}
	if dst, ok := kv["dst"]; ok {
		ev.DestinationIP = CanonicalIP(dst)
	}
	if p, ok := kv["dport"]; ok {
		ev.DestinationPort, _ = strconv.Atoi(p)
	}
	if p, ok := kv["sport"]; ok {
		ev.SourcePort, _ = strconv.Atoi(p)
	}
	if proto, ok := kv["proto"]; ok {
		ev.Protocol = strings.ToLower(proto)
	}
	if host, ok := kv["host"]; ok {
		ev.Host = host
	}
	if reason, ok := kv["reason"]; ok {
		ev.Reason = reason
	}
	return ev
}

// parseSSHAuth handles sshd failed-password lines:
// "Sep  2 15:21:30 server01 sshd[1234]: Failed password for admin from 42.236.12.235 port 22 ssh2"
func (n *Normalizer) parseSSHAuth(line string) *event.Event {
	m := sshFailedRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	user, ip, port := m[1], m[2], m[3]
	srcPort, _ := strconv.Atoi(port)

	return &event.Event{
		Category:   event.Categories{event.CategoryAuthentication},
		Outcome:    "failure",
		Action:     "login",
		Username:   user,
		SourceIP:   CanonicalIP(ip),
		SourcePort: srcPort,
		Host:       "server01",
		Message:    strings.TrimSpace(line),
		Raw:        map[string]interface{}{"line": strings.TrimSpace(line)},
	}
}

// parseWebAccess handles Apache/Nginx combined-like access lines:
// `42.236.12.235 - - [02/Sep/2025:15:21:30 +0000] "POST /login HTTP/1.1" 401 234 "-" "Mozilla/5.0"`
func (n *Normalizer) parseWebAccess(line string) *event.Event {
	m := webAccessRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	ip, method, path, statusStr, sizeStr, userAgent := m[1], m[2], m[3], m[4], m[5], m[6]
	status, _ := strconv.Atoi(statusStr)
	bodyBytes, _ := strconv.Atoi(sizeStr)

	outcome := "failure"
	if strings.HasPrefix(statusStr, "2") {
		outcome = "success"
	}

	return &event.Event{
		Category:   event.Categories{event.CategoryWeb},
		Outcome:    outcome,
		Action:     "request",
		SourceIP:   CanonicalIP(ip),
		Host:       "webserver01",
		HTTPMethod: method,
		HTTPStatus: status,
		URLPath:    path,
		URLFull:    path,
		UserAgent:  userAgent,
		Message:    strings.TrimSpace(line),
		Raw: map[string]interface{}{
			"http": map[string]interface{}{
				"request":  map[string]interface{}{"method": method, "body.bytes": bodyBytes},
				"response": map[string]interface{}{"status_code": status},
			},
		},
	}
}

// parseStructured accepts a JSON object already shaped like an Event.
func (n *Normalizer) parseStructured(line string) *event.Event {
	if !strings.HasPrefix(strings.TrimSpace(line), "{") {
		return nil
	}
	var ev event.Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return nil
	}
	if len(ev.Category) == 0 {
		return nil
	}
	if ev.Raw == nil {
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err == nil {
			ev.Raw = raw
		}
	}
	return &ev
}

// finalize stamps missing timestamps, canonicalizes addresses, lowercases
// category tags, and runs enrichment.
func (n *Normalizer) finalize(ev *event.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = n.now().UTC()
	} else {
		ev.Timestamp = ev.Timestamp.UTC()
	}

	lowered := make(event.Categories, 0, len(ev.Category))
	for _, tag := range ev.Category {
		lowered = lowered.Add(tag)
	}
	ev.Category = lowered

	if ev.SourceIP != "" {
		ev.SourceIP = CanonicalIP(ev.SourceIP)
	}
	if ev.DestinationIP != "" {
		ev.DestinationIP = CanonicalIP(ev.DestinationIP)
	}

	if n.enricher != nil && ev.SourceIP != "" {
		n.enricher.Enrich(ev)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

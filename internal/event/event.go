// Package event defines the normalized records shared by every stage of the
// pipeline: the Event produced by the normalizer and the Alert produced by
// the detectors.
package event

import (
	"strings"
	"time"
)

// Severity bands for alerts, highest first.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// Technique tags. Closed set, MITRE-flavoured.
const (
	TechniqueBruteForce           = "brute_force"
	TechniqueCredentialStuffing   = "credential_stuffing"
	TechniqueDistributedBrute     = "distributed_bruteforce"
	TechniqueDenialOfService      = "denial_of_service"
	TechniqueEndpointScanning     = "endpoint_scanning"
	TechniqueSQLInjection         = "SQLi"
	TechniqueXSS                  = "XSS"
	TechniquePrivilegeEscalation  = "privilege_escalation"
	TechniqueRansomware           = "ransomware"
	TechniqueDataExfiltration     = "data_exfiltration"
	TechniquePortScanning         = "port_scanning"
	TechniqueProtocolMisuse       = "protocol_misuse"
	TechniqueNetworkDenial        = "network_denial"
	TechniqueSuspiciousBehavior   = "suspicious_behavior"
)

// Category tags carried on events.
const (
	CategoryAuthentication = "authentication"
	CategoryWeb            = "web"
	CategoryFirewall       = "firewall"
	CategoryNetwork        = "network"
	CategoryFile           = "file"
)

// Categories is an ordered set of lowercase category tags.
type Categories []string

// Has reports whether the set contains tag (case-insensitive).
func (c Categories) Has(tag string) bool {
	tag = strings.ToLower(tag)
	for _, t := range c {
		if t == tag {
			return true
		}
	}
	return false
}

// Add appends tag if not already present, lowercased.
func (c Categories) Add(tag string) Categories {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || c.Has(tag) {
		return c
	}
	return append(c, tag)
}

// Event is a normalized security log record. Every field except Timestamp and
// Category is optional; absent values stay zero and persist as NULL.
type Event struct {
	ID               int64                  `json:"id,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
	SourceIP         string                 `json:"source_ip,omitempty"`
	SourcePort       int                    `json:"source_port,omitempty"`
	DestinationIP    string                 `json:"destination_ip,omitempty"`
	DestinationPort  int                    `json:"destination_port,omitempty"`
	Username         string                 `json:"username,omitempty"`
	Host             string                 `json:"host,omitempty"`
	Category         Categories             `json:"category"`
	Outcome          string                 `json:"outcome,omitempty"`
	Severity         int                    `json:"severity,omitempty"`
	Action           string                 `json:"action,omitempty"`
	Reason           string                 `json:"reason,omitempty"`
	HTTPMethod       string                 `json:"http_method,omitempty"`
	HTTPStatus       int                    `json:"http_status,omitempty"`
	URLPath          string                 `json:"url_path,omitempty"`
	URLFull          string                 `json:"url_full,omitempty"`
	UserAgent        string                 `json:"user_agent,omitempty"`
	AttackType       string                 `json:"attack_type,omitempty"`
	AttackConfidence string                 `json:"attack_confidence,omitempty"`
	Labels           []string               `json:"labels,omitempty"`
	Message          string                 `json:"message,omitempty"`
	Protocol         string                 `json:"protocol,omitempty"`
	FileName         string                 `json:"file_name,omitempty"`
	FilePath         string                 `json:"file_path,omitempty"`
	Raw              map[string]interface{} `json:"raw,omitempty"`
}

// Alert is a detector emission. Identity for DB-level dedupe is
// (Timestamp, Rule, SourceIP).
type Alert struct {
	Timestamp     time.Time              `json:"timestamp"`
	Rule          string                 `json:"rule"`
	UserName      string                 `json:"user_name,omitempty"`
	SourceIP      string                 `json:"source_ip,omitempty"`
	DestinationIP string                 `json:"destination_ip,omitempty"`
	AttemptCount  int                    `json:"attempt_count"`
	Severity      string                 `json:"severity"`
	Technique     string                 `json:"technique"`
	Score         float64                `json:"score"`
	Evidence      string                 `json:"evidence,omitempty"`
	Raw           map[string]interface{} `json:"raw,omitempty"`
}

// SeverityFromScore applies the standard banding: CRITICAL >= 8, HIGH >= 5,
// MEDIUM >= 2.5, else LOW.
func SeverityFromScore(score float64) string {
	switch {
	case score >= 8:
		return SeverityCritical
	case score >= 5:
		return SeverityHigh
	case score >= 2.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

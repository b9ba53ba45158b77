package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/siem/internal/event"
)

func firewallEvent(ts time.Time, src, dst, outcome string) event.Event {
	return event.Event{
		Timestamp:     ts,
		Category:      event.Categories{event.CategoryFirewall},
		Outcome:       outcome,
		SourceIP:      src,
		DestinationIP: dst,
	}
}

func TestDeniedThreshold(t *testing.T) {
	d := NewDenied(DeniedConfig{}, testWhitelist(t))

	var alerts []event.Alert
	for i := 0; i < 5; i++ {
		alerts = append(alerts, d.Process(firewallEvent(t0.Add(time.Duration(i)*30*time.Second), "42.1.2.3", "10.0.0.5", "denied"))...)
	}

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleFirewallDenied, a.Rule)
	assert.Equal(t, 5, a.AttemptCount)
	assert.Equal(t, 5.0, a.Score)
	assert.Equal(t, event.SeverityHigh, a.Severity)
	assert.Equal(t, event.TechniqueNetworkDenial, a.Technique)
}

func TestDeniedAcceptsBlockedOutcome(t *testing.T) {
	d := NewDenied(DeniedConfig{}, testWhitelist(t))

	var alerts []event.Alert
	for i := 0; i < 5; i++ {
		alerts = append(alerts, d.Process(firewallEvent(t0.Add(time.Duration(i)*time.Second), "42.1.2.3", "10.0.0.5", "blocked"))...)
	}
	assert.Len(t, alerts, 1)
}

func TestDeniedIgnoresAllowed(t *testing.T) {
	d := NewDenied(DeniedConfig{}, testWhitelist(t))

	for i := 0; i < 10; i++ {
		assert.Empty(t, d.Process(firewallEvent(t0.Add(time.Duration(i)*time.Second), "42.1.2.3", "10.0.0.5", "allowed")))
	}
}

func TestAllowedBlockedRequiresPriorAllow(t *testing.T) {
	d := NewAllowedBlocked(AllowedBlockedConfig{}, testWhitelist(t))

	// Denies without a prior allow never fire.
	for i := 0; i < 5; i++ {
		assert.Empty(t, d.Process(firewallEvent(t0.Add(time.Duration(i)*time.Second), "42.1.2.3", "10.0.0.5", "denied")))
	}

	// After an allow, three denies fire.
	d2 := NewAllowedBlocked(AllowedBlockedConfig{}, testWhitelist(t))
	assert.Empty(t, d2.Process(firewallEvent(t0, "42.1.2.3", "10.0.0.5", "allowed")))

	var alerts []event.Alert
	for i := 0; i < 3; i++ {
		alerts = append(alerts, d2.Process(firewallEvent(t0.Add(time.Duration(i+1)*10*time.Second), "42.1.2.3", "10.0.0.5", "denied"))...)
	}
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleAllowedBlocked, a.Rule)
	assert.Equal(t, event.SeverityHigh, a.Severity)
	assert.Equal(t, 7.0, a.Score, "k=7 for this rule")
	assert.Equal(t, event.TechniqueSuspiciousBehavior, a.Technique)
}

func TestAllowedMarkerIsIndefinite(t *testing.T) {
	d := NewAllowedBlocked(AllowedBlockedConfig{Dedupe: time.Minute}, testWhitelist(t))

	d.Process(firewallEvent(t0, "42.1.2.3", "10.0.0.5", "allowed"))
	for i := 0; i < 3; i++ {
		d.Process(firewallEvent(t0.Add(time.Duration(i+1)*10*time.Second), "42.1.2.3", "10.0.0.5", "denied"))
	}

	// Long after the first incident, denies still count against the same
	// marker: it never expires and emission never cleared the window logic.
	later := t0.Add(2 * time.Hour)
	var alerts []event.Alert
	for i := 0; i < 3; i++ {
		alerts = append(alerts, d.Process(firewallEvent(later.Add(time.Duration(i)*10*time.Second), "42.1.2.3", "10.0.0.5", "denied"))...)
	}
	assert.Len(t, alerts, 1)
}

func TestFloodEmitsOnceAndKeepsState(t *testing.T) {
	d := NewFlood(FloodConfig{}, testWhitelist(t))

	// 1000 denies inside 60s trigger exactly one CRITICAL alert.
	var alerts []event.Alert
	for i := 0; i < 1000; i++ {
		ts := t0.Add(time.Duration(i) * 50 * time.Millisecond)
		alerts = append(alerts, d.Process(firewallEvent(ts, "5.5.5.5", "10.0.0.1", "denied"))...)
	}
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleFirewallFlood, a.Rule)
	assert.Equal(t, 1000, a.AttemptCount)
	assert.Equal(t, event.SeverityCritical, a.Severity)
	assert.Equal(t, 10.0, a.Score)

	// 1000 more denies within the dedupe window add nothing. The window is
	// not cleared on emission, so the count keeps sliding instead of
	// restarting from zero.
	for i := 0; i < 1000; i++ {
		ts := t0.Add(50*time.Second + time.Duration(i)*50*time.Millisecond)
		alerts = append(alerts, d.Process(firewallEvent(ts, "5.5.5.5", "10.0.0.1", "denied"))...)
	}
	assert.Len(t, alerts, 1)
}

func protocolEvent(ts time.Time, src, proto string) event.Event {
	ev := firewallEvent(ts, src, "10.0.0.5", "denied")
	ev.Protocol = proto
	return ev
}

func TestProtocolMisuse(t *testing.T) {
	d := NewProtocolMisuse(ProtocolMisuseConfig{}, testWhitelist(t))

	var alerts []event.Alert
	for i := 0; i < 3; i++ {
		alerts = append(alerts, d.Process(protocolEvent(t0.Add(time.Duration(i)*30*time.Second), "42.1.2.3", "telnet"))...)
	}
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleProtocolMisuse, a.Rule)
	assert.Equal(t, event.SeverityHigh, a.Severity)
	assert.Equal(t, event.TechniqueProtocolMisuse, a.Technique)
	assert.Contains(t, a.Evidence, "telnet")
}

func TestProtocolMisuseKeysPerProtocol(t *testing.T) {
	d := NewProtocolMisuse(ProtocolMisuseConfig{}, testWhitelist(t))

	// Two attempts each over two protocols never reach the per-key threshold.
	for i := 0; i < 2; i++ {
		assert.Empty(t, d.Process(protocolEvent(t0.Add(time.Duration(i)*time.Second), "42.1.2.3", "ftp")))
		assert.Empty(t, d.Process(protocolEvent(t0.Add(time.Duration(i)*time.Second), "42.1.2.3", "udp")))
	}
}

func TestProtocolMisuseIgnoresCommonTransports(t *testing.T) {
	d := NewProtocolMisuse(ProtocolMisuseConfig{}, testWhitelist(t))

	for i := 0; i < 10; i++ {
		assert.Empty(t, d.Process(protocolEvent(t0.Add(time.Duration(i)*time.Second), "42.1.2.3", "tcp")))
	}
}

package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/siem/internal/event"
)

func portEvent(ts time.Time, src, dst string, port int) event.Event {
	return event.Event{
		Timestamp:       ts,
		Category:        event.Categories{event.CategoryFirewall},
		SourceIP:        src,
		DestinationIP:   dst,
		DestinationPort: port,
	}
}

func TestPerDestinationPortScan(t *testing.T) {
	// Quiet the slow-scan sub-rule; a 20-port burst trips its persistence
	// product before the per-destination threshold is reached.
	d := NewPortScan(PortScanConfig{StealthMinUnique: 1000}, testWhitelist(t))

	var alerts []event.Alert
	for i := 0; i < 20; i++ {
		alerts = append(alerts, d.Process(portEvent(t0.Add(time.Duration(i)*time.Second), "9.9.9.9", "10.0.0.1", 1000+i))...)
	}

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RulePerDestScan, a.Rule)
	assert.Equal(t, "9.9.9.9", a.SourceIP)
	assert.Equal(t, "10.0.0.1", a.DestinationIP)
	assert.Equal(t, 20, a.AttemptCount)
	assert.Equal(t, event.TechniquePortScanning, a.Technique)
	assert.GreaterOrEqual(t, a.Score, 5.0)
	assert.Contains(t, []string{event.SeverityHigh, event.SeverityCritical}, a.Severity)

	ports, ok := a.Raw["ports"].([]string)
	require.True(t, ok)
	assert.Len(t, ports, 20)
}

func TestRepeatedPortIsNotAScan(t *testing.T) {
	d := NewPortScan(PortScanConfig{}, testWhitelist(t))

	// Hammering one port is a connection storm, not a port scan.
	for i := 0; i < 100; i++ {
		alerts := d.Process(portEvent(t0.Add(time.Duration(i)*100*time.Millisecond), "9.9.9.9", "10.0.0.1", 443))
		assert.Empty(t, alerts)
	}
}

func TestDistributedScan(t *testing.T) {
	d := NewPortScan(PortScanConfig{}, testWhitelist(t))

	var alerts []event.Alert
	for i := 0; i < 50; i++ {
		dst := fmt.Sprintf("10.0.1.%d", i+1)
		alerts = append(alerts, d.Process(portEvent(t0.Add(time.Duration(i)*time.Second), "9.9.9.9", dst, 443))...)
	}

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleDistributedScan, a.Rule)
	assert.Empty(t, a.DestinationIP, "no single destination for a distributed scan")
	assert.Equal(t, 50, a.AttemptCount)
}

func TestCrossDestinationDiversity(t *testing.T) {
	cfg := PortScanConfig{
		// Quiet the noisier sub-rules so only diversity fires.
		PerDstThreshold:      1000,
		DistributedThreshold: 1000,
		StealthThreshold:     1000,
		StealthMinUnique:     1000,
	}
	d := NewPortScan(cfg, testWhitelist(t))

	var alerts []event.Alert
	for i := 0; i < 100; i++ {
		dst := fmt.Sprintf("10.0.%d.1", i%10)
		alerts = append(alerts, d.Process(portEvent(t0.Add(time.Duration(i)*time.Second), "9.9.9.9", dst, 2000+i))...)
	}

	require.Len(t, alerts, 1)
	assert.Equal(t, RuleCrossDstDiversity, alerts[0].Rule)
	assert.Equal(t, 100, alerts[0].AttemptCount)
}

func TestStealthySlowScan(t *testing.T) {
	cfg := PortScanConfig{
		PerDstThreshold:      1000,
		DistributedThreshold: 1000,
		CrossDstThreshold:    1000,
	}
	d := NewPortScan(cfg, testWhitelist(t))

	// Eight unique ports spread over ~50 minutes: far under every burst
	// threshold, but sqrt(7)*ln(1+7) > 5 clears the persistence bar.
	var alerts []event.Alert
	for i := 0; i < 8; i++ {
		ts := t0.Add(time.Duration(i) * 400 * time.Second)
		alerts = append(alerts, d.Process(portEvent(ts, "9.9.9.9", "10.0.0.1", 3000+i))...)
	}

	require.NotEmpty(t, alerts)
	a := alerts[0]
	assert.Equal(t, RuleStealthyScan, a.Rule)
	assert.Equal(t, event.TechniquePortScanning, a.Technique)
	assert.Greater(t, a.Score, 2.5)
}

func TestPortScanSkipsIncompleteEvents(t *testing.T) {
	d := NewPortScan(PortScanConfig{}, testWhitelist(t))

	noPort := portEvent(t0, "9.9.9.9", "10.0.0.1", 0)
	noDst := portEvent(t0, "9.9.9.9", "", 80)
	noSrc := portEvent(t0, "", "10.0.0.1", 80)
	for i := 0; i < 30; i++ {
		assert.Empty(t, d.Process(noPort))
		assert.Empty(t, d.Process(noDst))
		assert.Empty(t, d.Process(noSrc))
	}
}

func TestPortScanWhitelistedSource(t *testing.T) {
	d := NewPortScan(PortScanConfig{}, testWhitelist(t))

	for i := 0; i < 30; i++ {
		alerts := d.Process(portEvent(t0.Add(time.Duration(i)*time.Second), "10.9.9.9", "10.0.0.1", 1000+i))
		assert.Empty(t, alerts, "internal scanners are exempt")
	}
}

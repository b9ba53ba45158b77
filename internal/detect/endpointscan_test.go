package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/siem/internal/event"
)

func TestEndpointScanDistinctPaths(t *testing.T) {
	d := NewEndpointScan(EndpointScanConfig{}, testWhitelist(t))

	paths := []string{"/admin", "/login", "/config", "/backup", "/setup"}
	var alerts []event.Alert
	for i, p := range paths {
		alerts = append(alerts, d.Process(webEvent(t0.Add(time.Duration(i)*20*time.Second), "42.1.2.3", p))...)
	}

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleEndpointScan, a.Rule)
	assert.Equal(t, 5, a.AttemptCount)
	assert.Equal(t, event.SeverityHigh, a.Severity)
	assert.Equal(t, event.TechniqueEndpointScanning, a.Technique)
}

func TestEndpointScanNeedsDistinctPaths(t *testing.T) {
	d := NewEndpointScan(EndpointScanConfig{}, testWhitelist(t))

	// Hitting /login twenty times is a login problem, not endpoint
	// reconnaissance.
	for i := 0; i < 20; i++ {
		alerts := d.Process(webEvent(t0.Add(time.Duration(i)*time.Second), "42.1.2.3", "/login"))
		assert.Empty(t, alerts)
	}
}

func TestEndpointScanSubstringMatch(t *testing.T) {
	d := NewEndpointScan(EndpointScanConfig{}, testWhitelist(t))

	// Paths containing the sensitive fragments count, not just exact hits.
	paths := []string{"/site/admin/users", "/login.php", "/app/config.json", "/backup-2025", "/phpmyadmin/index"}
	var alerts []event.Alert
	for i, p := range paths {
		alerts = append(alerts, d.Process(webEvent(t0.Add(time.Duration(i)*time.Second), "42.1.2.3", p))...)
	}
	assert.Len(t, alerts, 1)
}

func TestEndpointScanIgnoresBenignPaths(t *testing.T) {
	d := NewEndpointScan(EndpointScanConfig{}, testWhitelist(t))

	for _, p := range []string{"/", "/index.html", "/api/v1/items", "/static/app.js"} {
		assert.Empty(t, d.Process(webEvent(t0, "42.1.2.3", p)))
	}
}

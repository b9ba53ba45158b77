package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/siem/internal/config"
	"github.com/sentra/siem/internal/detect"
	"github.com/sentra/siem/internal/event"
)

func buildPortScan(t *testing.T) detect.Detector {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/siem_test")

	cfg, err := config.Load("")
	require.NoError(t, err)
	ds, err := DefaultDetectors(cfg)
	require.NoError(t, err)
	scans := FilterByName(ds, "port_scan")
	require.Len(t, scans, 1)
	return scans[0]
}

func portProbe(ts time.Time, port int) event.Event {
	return event.Event{
		Timestamp:       ts,
		Category:        event.Categories{event.CategoryFirewall},
		SourceIP:        "203.0.113.9",
		DestinationIP:   "172.16.0.1",
		DestinationPort: port,
	}
}

func TestPortScanWindowOverrides(t *testing.T) {
	t.Setenv("WINDOW_PORT_SCAN", "10")
	t.Setenv("THRESHOLD_PORT_SCAN_STEALTH_MIN_UNIQUE", "1000")
	d := buildPortScan(t)

	// Twenty unique ports 11 seconds apart: with the burst window cut to
	// 10 seconds each probe expires before the next lands, and the raised
	// stealth floor keeps the slow-scan sub-rule quiet as well.
	base := time.Date(2025, 9, 2, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		alerts := d.Process(portProbe(base.Add(time.Duration(i)*11*time.Second), 1000+i))
		assert.Empty(t, alerts)
	}
}

func TestPortScanDefaultBurstFires(t *testing.T) {
	d := buildPortScan(t)

	// Same probes compressed into a one-second cadence trip the shipped
	// defaults.
	base := time.Date(2025, 9, 2, 15, 0, 0, 0, time.UTC)
	var alerts []event.Alert
	for i := 0; i < 20; i++ {
		alerts = append(alerts, d.Process(portProbe(base.Add(time.Duration(i)*time.Second), 1000+i))...)
	}
	assert.NotEmpty(t, alerts)
}

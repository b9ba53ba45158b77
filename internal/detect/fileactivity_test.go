package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/siem/internal/event"
)

func fileEvent(ts time.Time, user, src, name string) event.Event {
	return event.Event{
		Timestamp: ts,
		Category:  event.Categories{event.CategoryFile},
		Username:  user,
		SourceIP:  src,
		FileName:  name,
	}
}

func uploadEvent(ts time.Time, user, src, dst, name string) event.Event {
	return event.Event{
		Timestamp:     ts,
		Category:      event.Categories{event.CategoryNetwork},
		Username:      user,
		SourceIP:      src,
		DestinationIP: dst,
		FileName:      name,
	}
}

func TestMassEncryptionBurst(t *testing.T) {
	d := NewFileActivity(FileActivityConfig{}, testWhitelist(t))

	var alerts []event.Alert
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("report%02d.docx.locked", i)
		alerts = append(alerts, d.Process(fileEvent(t0.Add(time.Duration(i)*10*time.Second), "bob", "1.1.1.1", name))...)
	}

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleMassEncryption, a.Rule)
	assert.Equal(t, "bob", a.UserName)
	assert.Equal(t, "1.1.1.1", a.SourceIP)
	assert.Equal(t, 20, a.AttemptCount)
	assert.Equal(t, event.SeverityCritical, a.Severity)
	assert.Equal(t, event.TechniqueRansomware, a.Technique)

	// Further renames within the hour-long dedupe window stay silent.
	for i := 0; i < 10; i++ {
		more := d.Process(fileEvent(t0.Add(5*time.Minute+time.Duration(i)*time.Second), "bob", "1.1.1.1", "more.locked"))
		assert.Empty(t, more)
	}
}

func TestMassEncryptionHighEntropyNames(t *testing.T) {
	d := NewFileActivity(FileActivityConfig{FileThreshold: 5}, testWhitelist(t))

	// No ransomware extension, but names this random clear the entropy bar.
	var alerts []event.Alert
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("zq8x%02dk3vw9f7jm2hr5tn1c6ypl4gd0bs.e%d", i, i)
		alerts = append(alerts, d.Process(fileEvent(t0.Add(time.Duration(i)*time.Second), "bob", "1.1.1.1", name))...)
	}
	assert.Len(t, alerts, 1)
}

func TestMassEncryptionKeysPerUserAndIP(t *testing.T) {
	d := NewFileActivity(FileActivityConfig{FileThreshold: 5}, testWhitelist(t))

	// Split across two users, neither side reaches the threshold.
	for i := 0; i < 4; i++ {
		ts := t0.Add(time.Duration(i) * time.Second)
		assert.Empty(t, d.Process(fileEvent(ts, "bob", "1.1.1.1", "a.locked")))
		assert.Empty(t, d.Process(fileEvent(ts, "carol", "1.1.1.1", "b.locked")))
	}
}

func TestMassEncryptionIgnoresOrdinaryFiles(t *testing.T) {
	d := NewFileActivity(FileActivityConfig{FileThreshold: 3}, testWhitelist(t))

	for i := 0; i < 30; i++ {
		alerts := d.Process(fileEvent(t0.Add(time.Duration(i)*time.Second), "bob", "1.1.1.1", "notes.txt"))
		assert.Empty(t, alerts)
	}
}

func TestSensitiveUploadToExternalHost(t *testing.T) {
	d := NewFileActivity(FileActivityConfig{}, testWhitelist(t))

	alerts := d.Process(uploadEvent(t0, "bob", "1.1.1.1", "203.0.113.7", "customers.db"))
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleSensitiveUpload, a.Rule)
	assert.Equal(t, event.SeverityHigh, a.Severity)
	assert.Equal(t, event.TechniqueDataExfiltration, a.Technique)
	assert.Equal(t, "203.0.113.7", a.DestinationIP)

	// Same tuple inside the dedupe window is one incident.
	repeat := d.Process(uploadEvent(t0.Add(time.Minute), "bob", "1.1.1.1", "203.0.113.7", "customers.db"))
	assert.Empty(t, repeat)

	// A different destination is a separate incident.
	other := d.Process(uploadEvent(t0.Add(time.Minute), "bob", "1.1.1.1", "203.0.113.8", "customers.db"))
	assert.Len(t, other, 1)
}

func TestSensitiveUploadToPrivateHostIsFine(t *testing.T) {
	d := NewFileActivity(FileActivityConfig{}, testWhitelist(t))

	assert.Empty(t, d.Process(uploadEvent(t0, "bob", "1.1.1.1", "10.0.0.8", "customers.db")))
	assert.Empty(t, d.Process(uploadEvent(t0, "bob", "1.1.1.1", "192.168.1.20", "backup.sql")))
}

func TestSensitiveUploadFallsBackToPathBasename(t *testing.T) {
	d := NewFileActivity(FileActivityConfig{}, testWhitelist(t))

	ev := uploadEvent(t0, "bob", "1.1.1.1", "203.0.113.7", "")
	ev.FilePath = "/var/exports/Q3/accounts.bak"
	alerts := d.Process(ev)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Evidence, "accounts.bak")
}

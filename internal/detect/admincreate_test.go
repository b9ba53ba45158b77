package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/siem/internal/event"
)

func adminEvent(ts time.Time, creator, msg string) event.Event {
	return event.Event{
		Timestamp: ts,
		Category:  event.Categories{event.CategoryAuthentication},
		Outcome:   "success",
		Username:  creator,
		SourceIP:  "42.1.2.3",
		Message:   msg,
	}
}

func TestAdminCreationUnknownCreatorIsCritical(t *testing.T) {
	d := NewAdminCreate(AdminCreateConfig{KnownAdmins: []string{"opsadmin"}}, testWhitelist(t))

	alerts := d.Process(adminEvent(t0, "mallory", "user eve added to admin group"))
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, RuleAdminCreation, a.Rule)
	assert.Equal(t, event.SeverityCritical, a.Severity)
	assert.Equal(t, event.TechniquePrivilegeEscalation, a.Technique)
	assert.Equal(t, 9.0, a.Score)
	assert.Equal(t, "mallory", a.UserName)
}

func TestAdminCreationKnownAdminIsHigh(t *testing.T) {
	d := NewAdminCreate(AdminCreateConfig{KnownAdmins: []string{"opsadmin"}}, testWhitelist(t))

	alerts := d.Process(adminEvent(t0, "opsadmin", "grant admin to carol"))
	require.Len(t, alerts, 1)
	assert.Equal(t, event.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, 5.0, alerts[0].Score)
}

func TestAdminCreationBurstByKnownAdminEscalates(t *testing.T) {
	d := NewAdminCreate(AdminCreateConfig{
		KnownAdmins: []string{"opsadmin"},
		Dedupe:      time.Second,
	}, testWhitelist(t))

	first := d.Process(adminEvent(t0, "opsadmin", "grant admin to u1"))
	require.Len(t, first, 1)
	assert.Equal(t, event.SeverityHigh, first[0].Severity)

	// A second creation inside the window exceeds MaxCreations.
	second := d.Process(adminEvent(t0.Add(time.Minute), "opsadmin", "grant admin to u2"))
	require.Len(t, second, 1)
	assert.Equal(t, event.SeverityCritical, second[0].Severity)
}

func TestAdminCreationDedupe(t *testing.T) {
	d := NewAdminCreate(AdminCreateConfig{}, testWhitelist(t))

	first := d.Process(adminEvent(t0, "mallory", "sudo useradd backdoor"))
	require.Len(t, first, 1)

	// Same creator stays suppressed for an hour.
	for i := 1; i < 5; i++ {
		more := d.Process(adminEvent(t0.Add(time.Duration(i)*10*time.Minute), "mallory", "sudo useradd backdoor2"))
		assert.Empty(t, more)
	}

	// Past the hour the incident may be re-announced.
	later := d.Process(adminEvent(t0.Add(61*time.Minute), "mallory", "sudo useradd backdoor3"))
	assert.Len(t, later, 1)
}

func TestAdminCreationIgnoresOrdinaryLogins(t *testing.T) {
	d := NewAdminCreate(AdminCreateConfig{}, testWhitelist(t))

	assert.Empty(t, d.Process(adminEvent(t0, "alice", "session opened for user alice")))

	fail := adminEvent(t0, "mallory", "grant admin to eve")
	fail.Outcome = "failure"
	assert.Empty(t, d.Process(fail))
}

package sink

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/siem/internal/event"
	"github.com/sentra/siem/internal/livefeed"
)

type memAlertStore struct {
	alerts []event.Alert
	err    error
}

func (m *memAlertStore) UpsertAlerts(_ context.Context, alerts []event.Alert) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.alerts = append(m.alerts, alerts...)
	return int64(len(alerts)), nil
}

func TestDeliverPersistsAndPublishes(t *testing.T) {
	st := &memAlertStore{}
	feed := livefeed.New(nil)
	ch := feed.Subscribe()
	defer feed.Unsubscribe(ch)

	s := New(st, feed, nil, nil, nil)
	a := event.Alert{
		Timestamp: time.Date(2025, 9, 2, 15, 0, 0, 0, time.UTC),
		Rule:      "Brute Force (user+IP)",
		SourceIP:  "1.2.3.4",
		Severity:  event.SeverityHigh,
	}

	inserted := s.Deliver(context.Background(), []event.Alert{a})
	assert.Equal(t, int64(1), inserted)
	require.Len(t, st.alerts, 1)

	select {
	case env := <-ch:
		assert.Equal(t, a.Rule, env.Alert.Rule)
		assert.NotEmpty(t, env.ID)
	default:
		t.Fatal("alert not published to the live feed")
	}
}

func TestDeliverSwallowsStoreErrors(t *testing.T) {
	st := &memAlertStore{err: errors.New("connection refused")}
	s := New(st, nil, nil, nil, nil)

	// A failed batch is logged, not propagated; the scan loop keeps going.
	inserted := s.Deliver(context.Background(), []event.Alert{{Rule: "x"}})
	assert.Equal(t, int64(0), inserted)
}

func TestDeliverEmptyBatch(t *testing.T) {
	st := &memAlertStore{}
	s := New(st, nil, nil, nil, nil)
	assert.Equal(t, int64(0), s.Deliver(context.Background(), nil))
	assert.Empty(t, st.alerts)
}

func TestDeliverNormalizesTimestamps(t *testing.T) {
	st := &memAlertStore{}
	s := New(st, nil, nil, nil, nil)

	loc := time.FixedZone("UTC+3", 3*3600)
	alerts := []event.Alert{{
		Timestamp: time.Date(2025, 9, 2, 18, 0, 0, 0, loc),
		Rule:      "x",
	}}
	s.Deliver(context.Background(), alerts)

	require.Len(t, st.alerts, 1)
	assert.Equal(t, time.UTC, st.alerts[0].Timestamp.Location())
	assert.Equal(t, time.Date(2025, 9, 2, 15, 0, 0, 0, time.UTC), st.alerts[0].Timestamp)
}

func TestCoerceRaw(t *testing.T) {
	ts := time.Date(2025, 9, 2, 15, 0, 0, 0, time.UTC)
	addr := netip.MustParseAddr("2001:db8::1")

	raw := map[string]interface{}{
		"first_seen": ts,
		"addr":       addr,
		"nested": map[string]interface{}{
			"endpoint": netip.MustParseAddrPort("1.2.3.4:443"),
		},
		"list":  []interface{}{ts, "plain"},
		"count": 7,
	}

	out := coerceRaw(raw)
	assert.Equal(t, "2025-09-02T15:00:00Z", out["first_seen"])
	assert.Equal(t, "2001:db8::1", out["addr"])
	assert.Equal(t, "1.2.3.4:443", out["nested"].(map[string]interface{})["endpoint"])
	assert.Equal(t, "2025-09-02T15:00:00Z", out["list"].([]interface{})[0])
	assert.Equal(t, "plain", out["list"].([]interface{})[1])
	assert.Equal(t, 7, out["count"])

	assert.Nil(t, coerceRaw(nil))
}

package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/siem/internal/event"
	"github.com/sentra/siem/internal/normalize"
)

type memEventWriter struct {
	events []*event.Event
	err    error
}

func (m *memEventWriter) Append(_ context.Context, ev *event.Event) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.events = append(m.events, ev)
	return int64(len(m.events)), nil
}

func TestPipelinePersistsParsedLines(t *testing.T) {
	w := &memEventWriter{}
	p := NewPipeline(normalize.New(nil, nil), w, nil, nil)

	ok := p.Line(context.Background(), "Sep  2 15:21:30 server01 sshd[1234]: Failed password for admin from 42.236.12.235 port 22 ssh2")
	assert.True(t, ok)
	require.Len(t, w.events, 1)
	assert.Equal(t, "admin", w.events[0].Username)
	assert.True(t, w.events[0].Category.Has(event.CategoryAuthentication))
}

func TestPipelineDropsUnparsableLines(t *testing.T) {
	w := &memEventWriter{}
	p := NewPipeline(normalize.New(nil, nil), w, nil, nil)

	ok := p.Line(context.Background(), "nothing any parser recognizes")
	assert.False(t, ok)
	assert.Empty(t, w.events)
}

func TestPipelineSurvivesStoreFailure(t *testing.T) {
	w := &memEventWriter{err: errors.New("connection reset")}
	p := NewPipeline(normalize.New(nil, nil), w, nil, nil)

	// Persist errors are logged and dropped, never panicked on.
	p.Line(context.Background(), "action=DENY src=1.2.3.4 dst=10.0.0.5")
}

func TestPipelineRecordValidation(t *testing.T) {
	w := &memEventWriter{}
	p := NewPipeline(normalize.New(nil, nil), w, nil, nil)

	err := p.Record(context.Background(), &event.Event{SourceIP: "1.2.3.4"})
	assert.Error(t, err, "category is required for structured records")
	assert.Empty(t, w.events)

	err = p.Record(context.Background(), &event.Event{
		Category: event.Categories{event.CategoryFirewall},
		Outcome:  "denied",
		SourceIP: "1.2.3.4",
	})
	require.NoError(t, err)
	assert.Len(t, w.events, 1)
}

func TestParserLabel(t *testing.T) {
	assert.Equal(t, "firewall", parserLabel(&event.Event{Category: event.Categories{event.CategoryFirewall}}))
	assert.Equal(t, "ssh_auth", parserLabel(&event.Event{Category: event.Categories{event.CategoryAuthentication}}))
	assert.Equal(t, "web_access", parserLabel(&event.Event{Category: event.Categories{event.CategoryWeb}}))
	assert.Equal(t, "structured", parserLabel(&event.Event{Category: event.Categories{event.CategoryFile}}))
}

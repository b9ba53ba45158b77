package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/siem/internal/event"
	"github.com/sentra/siem/internal/normalize"
)

func pushSetup() (*PushHandler, *memEventWriter) {
	w := &memEventWriter{}
	p := NewPipeline(normalize.New(nil, nil), w, nil, nil)
	return NewPushHandler(p, nil), w
}

func doPush(t *testing.T, h *PushHandler, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/collect", strings.NewReader(body))
	req = req.WithContext(context.Background())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestPushStructuredEvent(t *testing.T) {
	h, w := pushSetup()

	rec, resp := doPush(t, h, `{"timestamp":"2025-09-02T15:21:30Z","category":["authentication"],"outcome":"failure","username":"alice","source_ip":"1.2.3.4"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp["status"])

	require.Len(t, w.events, 1)
	assert.Equal(t, "alice", w.events[0].Username)
}

func TestPushWrappedRawLine(t *testing.T) {
	h, w := pushSetup()

	line := "Sep  2 15:21:30 server01 sshd[1234]: Failed password for root from 5.6.7.8 port 22 ssh2"
	payload, err := json.Marshal(map[string]string{"message": line})
	require.NoError(t, err)

	rec, resp := doPush(t, h, string(payload))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp["status"])

	require.Len(t, w.events, 1)
	assert.Equal(t, "root", w.events[0].Username)
	assert.True(t, w.events[0].Category.Has(event.CategoryAuthentication))
}

func TestPushReportsUnrecognizedLine(t *testing.T) {
	h, w := pushSetup()

	rec, resp := doPush(t, h, `{"message": "nothing any parser recognizes"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", resp["status"])
	assert.NotEmpty(t, resp["detail"])
	assert.Empty(t, w.events)
}

func TestPushRejectsEmptyPayload(t *testing.T) {
	h, w := pushSetup()

	rec, resp := doPush(t, h, `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", resp["status"])
	assert.NotEmpty(t, resp["detail"])
	assert.Empty(t, w.events)
}

func TestPushRejectsMalformedJSON(t *testing.T) {
	h, w := pushSetup()

	rec, resp := doPush(t, h, `{"category": [`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", resp["status"])
	assert.Empty(t, w.events)
}

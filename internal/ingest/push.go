package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/sentra/siem/internal/event"
)

// PushHandler accepts log records over HTTP: either a structured Event
// document or a wrapped raw line {"message": "..."}.
type PushHandler struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

func NewPushHandler(p *Pipeline, logger *slog.Logger) *PushHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushHandler{pipeline: p, logger: logger.With("component", "push")}
}

func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"detail": "read body: " + err.Error(),
		})
		return
	}

	var ev event.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"detail": "invalid JSON payload: " + err.Error(),
		})
		return
	}

	switch {
	case len(ev.Category) > 0:
		if err := h.pipeline.Record(r.Context(), &ev); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "error",
				"detail": err.Error(),
			})
			return
		}
	case ev.Message != "":
		// A bare {"message": "..."} wraps one raw line for the parser chain.
		if !h.pipeline.Line(r.Context(), ev.Message) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "error",
				"detail": "no parser recognized the line",
			})
			return
		}
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"detail": "payload has neither a category nor a message",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Package api exposes the read side of the pipeline over REST/JSON: recent
// alerts, the live SSE alert stream, stored events and a health probe.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sentra/siem/internal/event"
	"github.com/sentra/siem/internal/livefeed"
	"github.com/sentra/siem/internal/report"
	"github.com/sentra/siem/internal/store"
)

// EventStore is the slice of the store the read API needs.
type EventStore interface {
	Read(ctx context.Context, f store.Filter) ([]event.Event, error)
	Ping(ctx context.Context) error
}

// Server bundles the HTTP handlers. Routing is owned by the caller.
type Server struct {
	store    EventStore
	reporter *report.Reporter
	feed     *livefeed.Feed
	logger   *slog.Logger
}

func New(st EventStore, rep *report.Reporter, feed *livefeed.Feed, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    st,
		reporter: rep,
		feed:     feed,
		logger:   logger.With("component", "api"),
	}
}

// Alerts returns the newest alerts as a JSON array. ?limit=N caps the count
// (default 50).
func (s *Server) Alerts(w http.ResponseWriter, r *http.Request) {
	limit := report.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.reporter.Summarize(r.Context(), limit)
	if err != nil {
		s.logger.Error("alert summary failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Events returns stored events, newest first. Supports ?since=RFC3339,
// ?category=web,firewall and ?limit=N.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	f := store.Filter{Descending: true}
	if v := r.URL.Query().Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "detail": "since must be RFC 3339"})
			return
		}
		f.Since = &ts
	}
	if v := r.URL.Query().Get("category"); v != "" {
		f.Categories = append(f.Categories, v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}

	events, err := s.store.Read(r.Context(), f)
	if err != nil {
		s.logger.Error("event query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// AlertStream pushes every new alert to the client as Server-Sent Events.
func (s *Server) AlertStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := s.feed.Subscribe()
	defer s.feed.Unsubscribe(ch)

	// Heartbeat keeps intermediaries from closing the idle stream.
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case env, ok := <-ch:
			if !ok {
				return
			}
			frame, err := env.SSEFormat()
			if err != nil {
				s.logger.Warn("alert frame not serializable", "error", err)
				continue
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Health reports database reachability and live feed status.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	dbStatus := "connected"
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
		dbStatus = "error"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":      status,
		"service":     "siem-collector",
		"database":    dbStatus,
		"subscribers": s.feed.SubscriberCount(),
	})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

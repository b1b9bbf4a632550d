package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/tracker"
)

// statusCheckInterval bounds how long a log stream lags behind a terminal
// status seen by polling.
var statusCheckInterval = time.Second

// closingLineGrace is how long a stream waits for the WORKFLOW line after
// the record turned terminal.
const closingLineGrace = 2 * time.Second

// GET /api/flows
func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	ids := s.tracking.Flows()
	flows := make([]any, 0, len(ids))
	for _, id := range ids {
		if snap, err := s.tracking.Snapshot(id); err == nil {
			flows = append(flows, snap)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": flows})
}

// trackFlow starts tracking a flow submitted elsewhere, for example by
// another builder instance.
// POST /api/flows/{id}/track
func (s *Server) trackFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.tracking.Track(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.tracking.Snapshot(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/flows/{id}
func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	snap, err := s.tracking.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DELETE /api/flows/{id}
func (s *Server) releaseFlow(w http.ResponseWriter, r *http.Request) {
	s.tracking.Release(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// streamFlowLogs streams the accumulated log of a tracked flow as SSE and
// keeps the connection open for new lines. Reconnecting clients resume
// after Last-Event-ID. A "done" event carrying the record is sent once the
// flow reaches a terminal status.
// GET /api/flows/{id}/logs
func (s *Server) streamFlowLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.tracking.Tracker(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: flow %s is not tracked", flowdeck.ErrNotFound, id))
		return
	}

	start := 0
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			start = n
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(statusCheckInterval)
	defer ticker.Stop()

	closed := false
	emit := func(events []flowdeck.LiveEvent) {
		for _, ev := range events {
			writeSSEEvent(w, ev)
			closed = closed || isClosingLine(ev)
		}
		start += len(events)
	}

	events, notify := t.LogsSince(id, start)
	for {
		emit(events)

		if rec, ok := t.Record(id); ok && isTerminal(rec.Status) {
			// The record can land before the closing log line does.
			grace := time.NewTimer(closingLineGrace)
		wait:
			for !closed {
				flusher.Flush()
				select {
				case <-r.Context().Done():
					grace.Stop()
					return
				case <-notify:
					events, notify = t.LogsSince(id, start)
					emit(events)
				case <-grace.C:
					break wait
				}
			}
			grace.Stop()
			emit(t.LogsAfter(id, start))
			writeDoneEvent(w, rec)
			flusher.Flush()
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-notify:
			events, notify = t.LogsSince(id, start)
		case <-ticker.C:
			if _, ok := s.tracking.Tracker(id); !ok {
				return
			}
			events = t.LogsAfter(id, start)
		}
	}
}

func isTerminal(status flowdeck.WorkflowStatus) bool {
	return status == flowdeck.WorkflowCompleted || status == flowdeck.WorkflowFailed
}

// isClosingLine reports whether ev is the last line a run publishes.
func isClosingLine(ev flowdeck.LiveEvent) bool {
	return ev.Type == flowdeck.EventComplete ||
		(ev.Type == flowdeck.EventError && strings.HasPrefix(ev.Message, "WORKFLOW"))
}

// logFrame is a log line as sent to the builder, with its display class.
type logFrame struct {
	flowdeck.LiveEvent
	Highlight tracker.Highlight `json:"highlight"`
}

// writeSSEEvent writes one log line as an SSE frame with its seq as the id.
func writeSSEEvent(w http.ResponseWriter, ev flowdeck.LiveEvent) {
	data, _ := json.Marshal(logFrame{LiveEvent: ev, Highlight: tracker.Classify(ev.Message)})
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
}

func writeDoneEvent(w http.ResponseWriter, rec flowdeck.ExecutionRecord) {
	data, _ := json.Marshal(rec)
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
}

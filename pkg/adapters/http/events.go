package http

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SubscribeEvents handles GET /runs/{id}/events as a server-sent event
// stream of run snapshots. The stream ends with a "done" event carrying the
// final run view.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	snaps := run.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Logger.Debug("SSE client disconnected", "run_id", run.ID)
			return
		case <-run.Done():
			s.sendEvent(w, "done", viewOf(run))
			flusher.Flush()
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			s.sendEvent(w, "state", snap)
			flusher.Flush()
		}
	}
}

func (s *Server) sendEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.Logger.Warn("SSE encode failed", "event", event, "err", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

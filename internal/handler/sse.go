package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
)

// JobEvents — GET /admin/api/jobs/{id}/events
//
// Streams archive-build progress as server-sent events: a "state" event
// with the current job row first, then "progress" events as the worker
// reports, then a final "state" event once the job finishes.
func (h *Handler) JobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Subscribe before reading the job row. A worker finishing between the
	// read and the subscription would otherwise publish its terminal update
	// into the void, leaving the stream stuck on a stale state.
	ch, unsub := h.Progress.Subscribe(id)
	defer unsub()

	job, err := db.GetJob(h.DB, id)
	if err != nil {
		slog.Error("get job for stream", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "lookup failed")
		return
	}
	if job == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such job")
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

	writeEvent := func(event string, v interface{}) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	writeEvent("state", jobToAPI(job))
	if job.State == model.JobStateCompleted || job.State == model.JobStateFailed {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case u := <-ch:
			writeEvent("progress", u)
			if u.Phase == "done" || u.Phase == "failed" {
				if final, err := db.GetJob(h.DB, id); err == nil && final != nil {
					writeEvent("state", jobToAPI(final))
				}
				return
			}
		}
	}
}

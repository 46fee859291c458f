package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/newsmap/hubcrawl/internal/models"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// StreamEvents is the raw SSE handler for the live event feed. Optional
// ?task=<id> narrows the stream to one job.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	taskFilter := r.URL.Query().Get("task")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"status":"error","error":{"code":"internal_error","message":"streaming not supported"}}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Jobs can outlive any sane write deadline.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	id, ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(id)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case e, open := <-ch:
			if !open {
				return
			}
			if taskFilter != "" && e.TaskID != taskFilter {
				continue
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		}
	}
}

// StreamJobEvents streams one job's events: persisted history first, then
// live events as they arrive.
func (h *Handlers) StreamJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		http.Error(w, `{"status":"error","error":{"code":"invalid_input","message":"job id required"}}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"status":"error","error":{"code":"internal_error","message":"streaming not supported"}}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	// Subscribe before replaying so nothing falls between history and live.
	id, ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(id)

	history, err := h.events.GetAfterID(r.Context(), jobID, "")
	if err != nil {
		h.logger.Warn("failed to replay job events", "job_id", jobID, "error", err)
	}
	lastID := ""
	for _, e := range history {
		writeSSEEvent(w, e)
		lastID = e.ID
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case e, open := <-ch:
			if !open {
				return
			}
			if e.TaskID != jobID || (lastID != "" && e.ID <= lastID) {
				continue
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, e *models.TaskEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.EventType, data)
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mbartos/photon/internal/notify"
)

// EventsHandler streams change notifications over SSE so a UI can refresh
// without polling.
type EventsHandler struct {
	broadcaster *notify.Broadcaster
}

func NewEventsHandler(broadcaster *notify.Broadcaster) *EventsHandler {
	return &EventsHandler{broadcaster: broadcaster}
}

// Stream handles GET /api/v1/events.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	events := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(events)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

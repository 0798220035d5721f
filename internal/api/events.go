package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/davidahmann/coitrack/internal/store"
)

const (
	eventBuffer       = 32
	keepAliveInterval = 15 * time.Second
)

// Events streams tracker mutations as server-sent events. A client that
// falls behind by more than the buffer loses events; the id field carries
// the tracker version so gaps are detectable.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)

	events := make(chan store.Event, eventBuffer)
	unsubscribe := svc.Tracker().Subscribe(func(ev store.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: 3000\n: version %d\n\n", svc.Tracker().Version())
	if err := rc.Flush(); err != nil {
		h.Logger.Warn("event stream not flushable", "error", err)
		return
	}

	closing := h.closingCh()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closing:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.Logger.Error("encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Version, ev.Kind, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

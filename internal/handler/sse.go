package handler

import (
	"fmt"
	"log"
	"net/http"

	"stockpulse/internal/httputil"
	"stockpulse/internal/service"
	"stockpulse/internal/transport/http/middleware"
)

type SSEHandler struct {
	hub *service.SSEHub
}

func NewSSEHandler(hub *service.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// Stream handles GET /notifications/stream
// Opens a server-sent events stream and pushes alert notifications to the
// client as they are dispatched. The connection stays open until the client
// disconnects.
func (h *SSEHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	session := h.hub.Register(userID)
	defer session.Close()

	for {
		select {
		case <-r.Context().Done():
			// Client disconnected.
			return
		case event, open := <-session.Events:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, event.Data); err != nil {
				log.Printf("[SSE] Write failed: session=%s user=%d err=%v", session.ID, userID, err)
				return
			}
			flusher.Flush()
		}
	}
}

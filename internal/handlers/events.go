package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"wa-sync-service/internal/broadcast"
)

// EventsHandler exposes the live notification stream.
type EventsHandler struct {
	hub *broadcast.Hub
}

// NewEventsHandler builds an EventsHandler.
func NewEventsHandler(hub *broadcast.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// sseWriter adapts one HTTP response into a hub stream. The hub publishes
// from its own goroutine while the handler goroutine may still be writing
// the ack, so every write is serialized.
type sseWriter struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
}

func (w *sseWriter) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(frame); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Stream handles GET /events. It registers the connection with the hub and
// blocks until the client goes away.
func (h *EventsHandler) Stream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	id := h.hub.Subscribe(&sseWriter{writer: c.Writer, flusher: flusher})
	defer h.hub.Unsubscribe(id)

	<-c.Request.Context().Done()
}

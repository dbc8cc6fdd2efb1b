package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"wa-sync-service/internal/models"
	"wa-sync-service/internal/observability"
)

// StreamWriter is one subscriber's outbound stream. WriteFrame must be safe
// to call from the hub's publishing goroutines.
type StreamWriter interface {
	WriteFrame(frame []byte) error
}

type subscriber struct {
	writer      StreamWriter
	connectedAt time.Time
}

// Hub maintains the set of live notification subscribers and fans published
// events out to all of them.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]subscriber)}
}

// Subscribe registers a stream and immediately sends the connection
// acknowledgement. It returns the generated subscriber id.
func (h *Hub) Subscribe(w StreamWriter) string {
	id := uuid.NewString()

	h.mu.Lock()
	h.subscribers[id] = subscriber{writer: w, connectedAt: time.Now()}
	h.mu.Unlock()
	// Incremented at registration so the failed-ack Unsubscribe below keeps
	// the gauge balanced.
	observability.IncSSEActive()

	ack := models.Notification{Type: models.NotifyConnected, Payload: map[string]string{"subscriber_id": id}}
	if err := w.WriteFrame(encodeFrame(ack)); err != nil {
		log.Printf("subscriber ack write failed id=%s: %v", id, err)
		h.Unsubscribe(id)
		return id
	}

	return id
}

// Unsubscribe removes a subscriber. Safe to call for ids already removed.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		observability.DecSSEActive()
		_ = observability.PublishEvent(context.Background(), observability.EventEnvelope{
			EventType: "sse_events",
			EventName: "unsubscribe",
			Payload: map[string]interface{}{
				"subscriber_id": id,
				"duration_ms":   time.Since(sub.connectedAt).Milliseconds(),
			},
		}, nil)
	}
}

// Publish serializes one notification and writes it to every registered
// stream. A broken subscriber is removed and never blocks delivery to the
// rest. Subscribers not connected at publish time see nothing.
func (h *Hub) Publish(eventType string, payload any) {
	frame := encodeFrame(models.Notification{Type: eventType, Payload: payload})

	h.mu.RLock()
	targets := make(map[string]StreamWriter, len(h.subscribers))
	for id, sub := range h.subscribers {
		targets[id] = sub.writer
	}
	h.mu.RUnlock()

	for id, w := range targets {
		if err := w.WriteFrame(frame); err != nil {
			log.Printf("subscriber write error id=%s: %v", id, err)
			h.Unsubscribe(id)
		}
	}
}

// Count reports the current number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown drops all subscribers.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.subscribers))
	for id := range h.subscribers {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Unsubscribe(id)
	}
}

// encodeFrame renders one server-sent-event frame: `data: <JSON>\n\n`.
func encodeFrame(n models.Notification) []byte {
	body, err := json.Marshal(n)
	if err != nil {
		body = []byte(`{"type":"` + n.Type + `"}`)
	}
	frame := make([]byte, 0, len(body)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, body...)
	frame = append(frame, "\n\n"...)
	return frame
}

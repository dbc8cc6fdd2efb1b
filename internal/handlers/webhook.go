package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"wa-sync-service/internal/models"
	"wa-sync-service/internal/observability"
	"wa-sync-service/internal/pipeline"
)

const maxWebhookBody = 4 << 20

// Dispatcher hands a canonical event to the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev models.CanonicalEvent)
}

// WebhookHandler receives platform callbacks and acknowledges them before
// any downstream work happens. The platform retries slow responses, so the
// pipeline runs after the response is written.
type WebhookHandler struct {
	dispatcher Dispatcher
}

// NewWebhookHandler builds a WebhookHandler.
func NewWebhookHandler(dispatcher Dispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// webhookEnvelope is the platform's body-level framing. Some deployments put
// the event name in the path, others in the body.
type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Receive handles POST /webhook/:instance/:event and POST /webhook/:instance.
func (h *WebhookHandler) Receive(c *gin.Context) {
	instance := c.Param("instance")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || instance == "" {
		observability.IncWebhookEvent("unknown", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	event := pipeline.TranslateEventName(c.Param("event"))
	payload := json.RawMessage(body)

	// Path-less deployments wrap the payload in {event, data}.
	if len(bytes.TrimSpace(body)) > 0 {
		var envelope webhookEnvelope
		if json.Unmarshal(body, &envelope) == nil && envelope.Event != "" && len(envelope.Data) > 0 {
			event = pipeline.TranslateEventName(envelope.Event)
			payload = envelope.Data
		}
	}

	if event == "" || len(bytes.TrimSpace(payload)) == 0 || !json.Valid(payload) {
		observability.IncWebhookEvent(event, "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	observability.IncWebhookEvent(event, "accepted")
	c.JSON(http.StatusOK, gin.H{"status": "received"})

	ev := models.CanonicalEvent{
		Instance:   instance,
		Event:      event,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
	requestID := observability.RequestIDFromRequest(c.Request)
	clientIP := observability.IPFromRequest(c.Request)
	go h.dispatchAsync(ev, requestID, clientIP)
}

// dispatchAsync runs the pipeline outside the request lifecycle. A panic or
// failure here is logged, never surfaced to the platform.
func (h *WebhookHandler) dispatchAsync(ev models.CanonicalEvent, requestID, clientIP string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("webhook dispatch panic instance=%s event=%s: %v", ev.Instance, ev.Event, r)
		}
	}()

	ctx, span := otel.Tracer("wa-sync-service/webhook").Start(context.Background(), "webhook.dispatch")
	span.SetAttributes(
		attribute.String("instance", ev.Instance),
		attribute.String("event", ev.Event),
	)
	defer span.End()

	h.dispatcher.Dispatch(ctx, ev)

	traceID := ""
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	_ = observability.PublishEvent(ctx, observability.EventEnvelope{
		EventType: "webhook",
		EventName: ev.Event,
		Instance:  ev.Instance,
		Payload: map[string]interface{}{
			"client_ip":   clientIP,
			"received_at": ev.ReceivedAt,
		},
	}, observability.BuildHeaders(requestID, traceID))
}

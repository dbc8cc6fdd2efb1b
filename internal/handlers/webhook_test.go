package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wa-sync-service/internal/mocks"
	"wa-sync-service/internal/models"
	"wa-sync-service/internal/observability"
)

// capturingDispatcher collects events without testify's expectation
// machinery: dispatch happens on a goroutine after the response, so the
// tests poll instead of asserting call counts inline.
type capturingDispatcher struct {
	mu     sync.Mutex
	events []models.CanonicalEvent
}

func (d *capturingDispatcher) Dispatch(_ context.Context, ev models.CanonicalEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *capturingDispatcher) snapshot() []models.CanonicalEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.CanonicalEvent, len(d.events))
	copy(out, d.events)
	return out
}

func setupWebhookRouter(dispatcher Dispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(dispatcher)
	r.POST("/webhook/:instance/:event", handler.Receive)
	r.POST("/webhook/:instance", handler.Receive)
	return r
}

func TestWebhookAcknowledgesAndDispatches(t *testing.T) {
	dispatcher := &capturingDispatcher{}
	router := setupWebhookRouter(dispatcher)

	body := bytes.NewBufferString(`{"key":{"id":"M1","remoteJid":"111@s.whatsapp.net"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/main/messages-upsert", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "received", resp["status"])

	require.Eventually(t, func() bool {
		return len(dispatcher.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	ev := dispatcher.snapshot()[0]
	require.Equal(t, "main", ev.Instance)
	require.Equal(t, models.EventMessagesUpsert, ev.Event)
	require.False(t, ev.ReceivedAt.IsZero())
}

func TestWebhookBodyEnvelopeCarriesEvent(t *testing.T) {
	dispatcher := &capturingDispatcher{}
	router := setupWebhookRouter(dispatcher)

	body := bytes.NewBufferString(`{"event":"messages-upsert","data":{"key":{"id":"M1","remoteJid":"111@s.whatsapp.net"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/main", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return len(dispatcher.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	ev := dispatcher.snapshot()[0]
	require.Equal(t, models.EventMessagesUpsert, ev.Event)
	require.JSONEq(t, `{"key":{"id":"M1","remoteJid":"111@s.whatsapp.net"}}`, string(ev.Payload))
}

func TestWebhookRejectsMissingEvent(t *testing.T) {
	dispatcher := new(mocks.DispatcherMock)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Maybe()
	router := setupWebhookRouter(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/webhook/main", bytes.NewBufferString(`{"key":{"id":"M1"}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "Invalid payload", resp["error"])

	time.Sleep(20 * time.Millisecond)
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestWebhookRejectsEmptyBody(t *testing.T) {
	dispatcher := &capturingDispatcher{}
	router := setupWebhookRouter(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/webhook/main/messages-upsert", bytes.NewBufferString(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, dispatcher.snapshot())
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	dispatcher := &capturingDispatcher{}
	router := setupWebhookRouter(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/webhook/main/messages-upsert", bytes.NewBufferString(`{not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, dispatcher.snapshot())
}

func TestWebhookPublishesOperationalEvent(t *testing.T) {
	type published struct {
		env     observability.EventEnvelope
		headers map[string]string
	}
	got := make(chan published, 1)

	publisher := new(mocks.PublisherMock)
	publisher.On("PublishEnvelope", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			got <- published{
				env:     args.Get(1).(observability.EventEnvelope),
				headers: args.Get(2).(map[string]string),
			}
		}).Return(nil)
	observability.SetPublisher(publisher)
	defer observability.SetPublisher(nil)

	dispatcher := &capturingDispatcher{}
	router := setupWebhookRouter(dispatcher)

	body := bytes.NewBufferString(`{"key":{"id":"M1","remoteJid":"111@s.whatsapp.net"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/main/messages-upsert", body)
	req.Header.Set("X-Request-Id", "req-77")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case p := <-got:
		require.Equal(t, "webhook", p.env.EventType)
		require.Equal(t, models.EventMessagesUpsert, p.env.EventName)
		require.Equal(t, "main", p.env.Instance)
		require.Equal(t, "req-77", p.headers["x-request-id"])
	case <-time.After(time.Second):
		t.Fatal("operational event never published")
	}
}

func TestWebhookArrayBodyAccepted(t *testing.T) {
	dispatcher := &capturingDispatcher{}
	router := setupWebhookRouter(dispatcher)

	body := bytes.NewBufferString(`[{"key":{"id":"M1","remoteJid":"111@s.whatsapp.net"}}]`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/main/messages-upsert", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return len(dispatcher.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wasync_http_requests_total",
			Help: "Total number of HTTP requests processed by the sync service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wasync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wasync_webhook_events_total",
			Help: "Webhook deliveries by event name and outcome.",
		},
		[]string{"event", "outcome"},
	)
	pipelineItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wasync_pipeline_items_total",
			Help: "Normalized event items processed by the router.",
		},
		[]string{"event", "outcome"},
	)
	streamReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wasync_stream_reconnects_total",
			Help: "Live stream reconnect attempts per instance.",
		},
		[]string{"instance"},
	)
	sseActiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wasync_sse_active_subscribers",
			Help: "Number of live notification subscribers.",
		},
	)
	gatewayInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wasync_db_gateway_in_flight",
			Help: "Database units of work currently holding a gateway slot.",
		},
	)
	gatewayQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wasync_db_gateway_queued",
			Help: "Database units of work waiting for a gateway slot.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wasync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		webhookEventsTotal,
		pipelineItemsTotal,
		streamReconnectsTotal,
		sseActiveSubscribers,
		gatewayInFlight,
		gatewayQueued,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWebhookEvent(event, outcome string) {
	webhookEventsTotal.WithLabelValues(event, outcome).Inc()
}

func IncPipelineItem(event, outcome string) {
	pipelineItemsTotal.WithLabelValues(event, outcome).Inc()
}

func IncStreamReconnect(instance string) {
	streamReconnectsTotal.WithLabelValues(instance).Inc()
}

func IncSSEActive() {
	sseActiveSubscribers.Inc()
}

func DecSSEActive() {
	sseActiveSubscribers.Dec()
}

func GatewayInFlightInc() {
	gatewayInFlight.Inc()
}

func GatewayInFlightDec() {
	gatewayInFlight.Dec()
}

func GatewayQueuedInc() {
	gatewayQueued.Inc()
}

func GatewayQueuedDec() {
	gatewayQueued.Dec()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

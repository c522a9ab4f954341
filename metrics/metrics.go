package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)

	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_requests_total",
			Help: "Calls made to the payment gateway by operation and outcome",
		},
		[]string{"gateway", "operation", "outcome"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_request_duration_seconds",
			Help:    "Payment gateway call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"gateway", "operation"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Webhook deliveries by gateway, reported status and result",
		},
		[]string{"gateway", "status", "result"},
	)

	IncidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_recorded_total",
			Help: "Absorbed inconsistencies recorded for operator review",
		},
		[]string{"kind"},
	)

	PaymentSweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sweep_bookings_total",
			Help: "Stale payments re-checked by the sweep job, by result",
		},
		[]string{"result"},
	)
)

// PrometheusMiddleware records request count, latency and in-flight gauge.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		RequestsInFlight.Inc()
		defer RequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry for GET /metrics.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// TrackGatewayRequest records one gateway call.
func TrackGatewayRequest(gateway, operation, outcome string, duration time.Duration) {
	GatewayRequestsTotal.WithLabelValues(gateway, operation, outcome).Inc()
	GatewayRequestDuration.WithLabelValues(gateway, operation).Observe(duration.Seconds())
}

func TrackWebhook(gateway, status, result string) {
	WebhookEventsTotal.WithLabelValues(gateway, status, result).Inc()
}

func TrackIncident(kind string) {
	IncidentsTotal.WithLabelValues(kind).Inc()
}

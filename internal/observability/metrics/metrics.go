// Package metrics exposes Prometheus instruments for business and HTTP telemetry.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentSuccess *prometheus.CounterVec
	paymentRevenue prometheus.Counter
	tokensConsumed prometheus.Counter
	freeTrialUsed  prometheus.Counter
	generations    *prometheus.CounterVec
}

// New registers the business instruments on the default registry.
func New() *Metrics {
	return &Metrics{
		paymentSuccess: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_success_total",
			Help: "Successful payments",
		}, []string{"product_sku"}),
		paymentRevenue: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payment_revenue_cents_total",
			Help: "Total revenue in cents",
		}),
		tokensConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokens_consumed_total",
			Help: "Paid tokens consumed",
		}),
		freeTrialUsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "free_trial_used_total",
			Help: "Free tier generations used",
		}),
		generations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "core_function_calls_total",
			Help: "Content generation calls",
		}, []string{"function"}),
	}
}

// RecordPayment increments payment counters and revenue.
func (m *Metrics) RecordPayment(productSKU string, amountCents int64) {
	if m == nil {
		return
	}
	m.paymentSuccess.WithLabelValues(strings.TrimSpace(productSKU)).Inc()
	if amountCents > 0 {
		m.paymentRevenue.Add(float64(amountCents))
	}
}

// RecordConsumption increments the counter for the tier a unit was drawn from.
func (m *Metrics) RecordConsumption(tier string) {
	if m == nil {
		return
	}
	if tier == "paid" {
		m.tokensConsumed.Inc()
		return
	}
	m.freeTrialUsed.Inc()
}

// RecordGeneration counts a content-generation call by function name.
func (m *Metrics) RecordGeneration(function string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(strings.TrimSpace(function)).Inc()
}

// HTTPMetrics instruments inbound requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"route", "method", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	paymentIntentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_created_total",
			Help: "Total number of payment intents created",
		},
		[]string{"currency"},
	)

	paymentConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_confirmations_total",
			Help: "Total number of payment confirmations by resulting status",
		},
		[]string{"status"},
	)

	commissionCalculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_calculations_total",
			Help: "Total number of commission calculations",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(paymentIntentsCreatedTotal)
	prometheus.MustRegister(paymentConfirmationsTotal)
	prometheus.MustRegister(commissionCalculationsTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordIntentCreated(currency string) {
	paymentIntentsCreatedTotal.WithLabelValues(currency).Inc()
}

func RecordConfirmation(status string) {
	paymentConfirmationsTotal.WithLabelValues(status).Inc()
}

func RecordCommissionCalculation(category string) {
	commissionCalculationsTotal.WithLabelValues(category).Inc()
}

package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector business and system metrics
type MetricsCollector struct {
	checkoutTotal       *prometheus.CounterVec
	checkoutDuration    *prometheus.HistogramVec
	fraudRejectionTotal *prometheus.CounterVec

	webhookTotal       *prometheus.CounterVec
	webhookDuration    *prometheus.HistogramVec
	materializedOrders prometheus.Counter
	compensationTotal  prometheus.Counter

	stockReservedTotal *prometheus.CounterVec
	stockRestoredTotal *prometheus.CounterVec

	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetricsCollector creates and registers all metrics
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{}

	mc.checkoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_total",
			Help: "Total number of checkout attempts",
		},
		[]string{"mode", "status"},
	)

	mc.checkoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "Duration of checkout processing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	mc.fraudRejectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_rejection_total",
			Help: "Total number of checkouts rejected by the velocity gate",
		},
		[]string{"scope"},
	)

	mc.webhookTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_total",
			Help: "Total number of payment webhooks processed",
		},
		[]string{"event", "status"},
	)

	mc.webhookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_webhook_duration_seconds",
			Help:    "Duration of webhook processing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	mc.materializedOrders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_materialized_total",
			Help: "Total number of orders created from captured payments",
		},
	)

	mc.compensationTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_compensation_total",
			Help: "Total number of materializations rolled back after a partial reservation failure",
		},
	)

	mc.stockReservedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reserved_total",
			Help: "Total number of stock reservation attempts",
		},
		[]string{"status"},
	)

	mc.stockRestoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_restored_total",
			Help: "Total number of stock restorations",
		},
		[]string{"reason"},
	)

	mc.httpRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mc.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return mc
}

// RecordCheckout records a checkout attempt
func (mc *MetricsCollector) RecordCheckout(mode, status string, duration time.Duration) {
	mc.checkoutTotal.WithLabelValues(mode, status).Inc()
	mc.checkoutDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordFraudRejection records a velocity gate rejection
func (mc *MetricsCollector) RecordFraudRejection(scope string) {
	mc.fraudRejectionTotal.WithLabelValues(scope).Inc()
}

// RecordWebhook records a processed webhook
func (mc *MetricsCollector) RecordWebhook(event, status string, duration time.Duration) {
	mc.webhookTotal.WithLabelValues(event, status).Inc()
	mc.webhookDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// RecordMaterialization records orders created from a captured payment
func (mc *MetricsCollector) RecordMaterialization(orderCount int) {
	mc.materializedOrders.Add(float64(orderCount))
}

// RecordCompensation records a rolled-back materialization
func (mc *MetricsCollector) RecordCompensation() {
	mc.compensationTotal.Inc()
}

// RecordStockReservation records a stock reservation attempt
func (mc *MetricsCollector) RecordStockReservation(status string) {
	mc.stockReservedTotal.WithLabelValues(status).Inc()
}

// RecordStockRestoration records a stock restoration
func (mc *MetricsCollector) RecordStockRestoration(reason string) {
	mc.stockRestoredTotal.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records an HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	mc.httpRequestTotal.WithLabelValues(method, path, status).Inc()
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

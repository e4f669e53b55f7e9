package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики оформления заказов.
type CheckoutMetrics struct {
	ordersPlaced prometheus.Counter
	failures     *prometheus.CounterVec
	duration     prometheus.Histogram
	orderLines   prometheus.Histogram
}

// NewCheckoutMetrics создаёт метрики checkout в DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики checkout в заданном реестре.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	return &CheckoutMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_orders_placed_total",
			Help: "Total number of orders placed successfully.",
		}),
		failures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failures_total",
			Help: "Total number of rejected or failed checkouts grouped by reason.",
		}, []string{"reason"}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of the checkout transaction in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		orderLines: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_order_lines",
			Help:    "Number of lines in placed orders.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

// RecordOrderPlaced учитывает успешно оформленный заказ.
func (m *CheckoutMetrics) RecordOrderPlaced(lines int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	m.orderLines.Observe(float64(lines))
	m.duration.Observe(duration.Seconds())
}

// RecordFailure учитывает отказ в оформлении с причиной reason.
func (m *CheckoutMetrics) RecordFailure(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
	m.duration.Observe(duration.Seconds())
}

// PaymentMetrics содержит метрики приёма платежей.
type PaymentMetrics struct {
	recorded *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

// NewPaymentMetrics создаёт метрики платежей в DefaultRegisterer.
func NewPaymentMetrics() *PaymentMetrics {
	return NewPaymentMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPaymentMetricsWithRegisterer создаёт метрики платежей в заданном реестре.
func NewPaymentMetricsWithRegisterer(registerer prometheus.Registerer) *PaymentMetrics {
	return &PaymentMetrics{
		recorded: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payments_recorded_total",
			Help: "Total number of persisted payments grouped by payment status.",
		}, []string{"status"}),
		rejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payments_rejected_total",
			Help: "Total number of rejected payments grouped by reason.",
		}, []string{"reason"}),
	}
}

// RecordRecorded учитывает сохранённый платёж.
func (m *PaymentMetrics) RecordRecorded(status string) {
	if m == nil {
		return
	}
	m.recorded.WithLabelValues(status).Inc()
}

// RecordRejected учитывает отклонённый платёж.
func (m *PaymentMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

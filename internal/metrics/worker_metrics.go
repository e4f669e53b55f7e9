package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics содержит метрики outbox worker.
type OutboxMetrics struct {
	publishAttempts  *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики outbox в DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer создаёт метрики outbox в заданном реестре.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
	}
}

// RecordPublishAttempt учитывает попытку публикации с результатом result.
func (m *OutboxMetrics) RecordPublishAttempt(result string) {
	if m == nil {
		return
	}
	m.publishAttempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер backlog и возраст самой старой записи.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 || pending == 0 {
		oldestAge = 0
	}
	m.pendingRecords.Set(float64(pending))
	m.oldestPendingAge.Set(oldestAge.Seconds())
}

// CleanupMetrics содержит метрики очистки idempotency ключей.
type CleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewCleanupMetrics создаёт метрики очистки в DefaultRegisterer.
func NewCleanupMetrics() *CleanupMetrics {
	return NewCleanupMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCleanupMetricsWithRegisterer создаёт метрики очистки в заданном реестре.
func NewCleanupMetricsWithRegisterer(registerer prometheus.Registerer) *CleanupMetrics {
	return &CleanupMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
	}
}

// RecordRun учитывает завершённый цикл очистки.
func (m *CleanupMetrics) RecordRun(result string, deleted int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	if result == "ok" {
		m.lastDeleted.Set(float64(deleted))
	}
}

// RecordDeleted учитывает удалённые записи одного batch.
func (m *CleanupMetrics) RecordDeleted(deleted int) {
	if m == nil || deleted <= 0 {
		return
	}
	m.deleted.Add(float64(deleted))
}

package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AggregateOrder — единственный агрегат витрины, события которого уходят в брокер.
const AggregateOrder = "order"

// Типы событий заказа.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentRecorded    = "payment.recorded"
)

// OutboxMessage — событие, записанное в outbox в транзакции заказа или платежа.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats — размер очереди неотправленных событий.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает до limit самых старых pending-сообщений, не меняя их статус.
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher доставляет событие во внешний брокер.
// Повторная доставка того же сообщения допустима: потребители дедуплицируют по ID.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}

// DeadLetter — событие, которое не удалось доставить, вместе с причиной отказа.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Event         json.RawMessage `json:"event"`
	Error         string          `json:"error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// NewDeadLetter упаковывает msg; не-JSON payload сохраняется строкой, пустой не сохраняется.
func NewDeadLetter(msg OutboxMessage, cause error, at time.Time) DeadLetter {
	var event json.RawMessage
	if len(msg.Payload) > 0 {
		event = json.RawMessage(msg.Payload)
	}
	if event != nil && !json.Valid(event) {
		event, _ = json.Marshal(string(msg.Payload))
	}
	letter := DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Event:         event,
		FailedAt:      at.UTC(),
	}
	if cause != nil {
		letter.Error = cause.Error()
	}
	return letter
}

// Replayable сообщает, что исходное событие сохранилось и его можно отправить повторно.
func (d DeadLetter) Replayable() bool {
	return len(d.Event) > 0 && string(d.Event) != "null"
}

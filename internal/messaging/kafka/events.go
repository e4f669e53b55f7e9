package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "stayawake.order.events"
	TopicDeadLetterQueue = "stayawake.dlq"
)

// Заголовки сообщений; дублируют поля конверта для фильтрации без разбора JSON.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderReplayedAt    = "x-replayed-at"
)

// Envelope — формат сообщения, которое outbox публикует в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение. Невалидный JSON в payload
// передаётся строкой, чтобы конверт оставался валидным.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	} else if !json.Valid(payload) {
		quoted, _ := json.Marshal(string(msg.Payload))
		payload = quoted
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// Key возвращает ключ партиционирования: события одного заказа попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher has no producer")

// OutboxTopicPublisher отправляет outbox-сообщения конвертом Envelope в один topic:
// основной поток событий заказов или DLQ.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher — пустой topic означает TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *OutboxTopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	envelope := NewEnvelope(msg, p.now())
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", msg.EventType, err)
	}
	_, err = p.producer.Send(Message{
		Topic: p.topic,
		Key:   envelope.Key(),
		Value: value,
		Headers: map[string]string{
			HeaderEventType:     msg.EventType,
			HeaderAggregateType: msg.AggregateType,
		},
	})
	return err
}

func (p *OutboxTopicPublisher) Topic() string { return p.topic }

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

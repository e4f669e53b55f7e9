package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// captureSent ожидает одну успешную отправку и сохраняет её в *got.
func captureSent(t *testing.T, got **sarama.ProducerMessage) *mocks.SyncProducer {
	t.Helper()
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		*got = msg
		return nil
	})
	return sp
}

func TestOutboxPublisher_WrapsMessageInEnvelope(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var sent *sarama.ProducerMessage
	sp := captureSent(t, &sent)

	publisher := NewOutboxPublisher(NewProducerFrom(sp), "")
	publisher.now = func() time.Time { return at }
	require.Equal(t, TopicOrderEvents, publisher.Topic())

	require.NoError(t, publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventPaymentRecorded,
		Payload:       []byte(`{"status":"completed"}`),
	}))
	require.NoError(t, sp.Close())

	require.Equal(t, TopicOrderEvents, sent.Topic)
	key, err := sent.Key.Encode()
	require.NoError(t, err)
	require.Equal(t, "order-123", string(key))

	raw, err := sent.Value.Encode()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "outbox-1", env.ID)
	require.Equal(t, domain.EventPaymentRecorded, env.EventType)
	require.True(t, env.PublishedAt.Equal(at))
	require.JSONEq(t, `{"status":"completed"}`, string(env.Payload))

	headers := map[string]string{}
	for _, h := range sent.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	require.Equal(t, map[string]string{
		HeaderEventType:     domain.EventPaymentRecorded,
		HeaderAggregateType: domain.AggregateOrder,
	}, headers)
}

func TestOutboxPublisher_Failures(t *testing.T) {
	t.Parallel()

	t.Run("broker error", func(t *testing.T) {
		sp := mocks.NewSyncProducer(t, nil)
		sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		publisher := NewOutboxPublisher(NewProducerFrom(sp), TopicDeadLetterQueue)
		err := publisher.Publish(domain.OutboxMessage{ID: "outbox-2", AggregateID: "order-234", EventType: domain.EventOrderStatusChanged})
		require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
		require.ErrorContains(t, err, TopicDeadLetterQueue)
		require.NoError(t, sp.Close())
	})

	t.Run("no producer", func(t *testing.T) {
		require.ErrorIs(t, NewOutboxPublisher(nil, TopicOrderEvents).Publish(domain.OutboxMessage{ID: "outbox-3"}), errPublisherNotInitialized)
	})

	t.Run("nil publisher", func(t *testing.T) {
		var publisher *OutboxTopicPublisher
		require.ErrorIs(t, publisher.Publish(domain.OutboxMessage{}), errPublisherNotInitialized)
	})
}

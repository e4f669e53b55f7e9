package kafka

import (
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Message — одна запись для Kafka. Key определяет партицию: события одного заказа
// идут с одним ключом, поэтому потребители видят их по порядку.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Delivery — куда брокер записал сообщение.
type Delivery struct {
	Partition int32
	Offset    int64
}

// ClientConfig — настройки клиента витрины: idempotent producer, подтверждение
// всеми репликами, snappy. clientID виден в логах брокера.
func ClientConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	// idempotent producer требует не больше одного запроса в полёте.
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// Producer — синхронная отправка: Send возвращается после подтверждения брокера.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

// NewProducer подключается к брокерам с ClientConfig("stayawake-storefront").
func NewProducer(brokers []string) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(brokers, ClientConfig("stayawake-storefront"))
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return NewProducerFrom(sp), nil
}

// NewProducerFrom оборачивает готовый sarama.SyncProducer (например, из sarama/mocks).
func NewProducerFrom(sp sarama.SyncProducer) *Producer {
	return &Producer{
		sync:   sp,
		logger: log.WithField("component", "kafka-producer"),
		now:    time.Now,
	}
}

// Send отправляет m; заголовки пишутся в порядке ключей.
func (p *Producer) Send(m Message) (Delivery, error) {
	record := &sarama.ProducerMessage{
		Topic:     m.Topic,
		Key:       sarama.StringEncoder(m.Key),
		Value:     sarama.ByteEncoder(m.Value),
		Timestamp: p.now(),
		Headers:   recordHeaders(m.Headers),
	}

	entry := p.logger.WithFields(log.Fields{"topic": m.Topic, "key": m.Key})
	partition, offset, err := p.sync.SendMessage(record)
	if err != nil {
		entry.WithError(err).Warn("kafka send failed")
		return Delivery{}, fmt.Errorf("send to %s: %w", m.Topic, err)
	}
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message delivered")
	return Delivery{Partition: partition, Offset: offset}, nil
}

func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]sarama.RecordHeader, 0, len(keys))
	for _, k := range keys {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(headers[k])})
	}
	return out
}

func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

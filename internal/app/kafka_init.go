package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/stayawake/internal/health"
	"github.com/vladislavdragonenkov/stayawake/internal/messaging/kafka"
)

var errKafkaUnavailable = errors.New("kafka producer is not connected")

// kafkaLink — подключение к брокерам. producer == nil, если Kafka выключена
// или недоступна при старте; в обоих случаях заказы принимаются, события ждут в outbox.
type kafkaLink struct {
	brokers  []string
	producer *kafka.Producer
	err      error
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func connectKafka(raw string, logger *log.Entry) *kafkaLink {
	link := &kafkaLink{brokers: splitBrokers(raw)}
	if !link.enabled() {
		return link
	}

	entry := logger.WithField("brokers", link.brokers)
	link.producer, link.err = kafka.NewProducer(link.brokers)
	if link.err != nil {
		entry.WithError(link.err).Warn("kafka is unreachable, order events will wait in outbox")
		return link
	}
	entry.Info("kafka producer connected")
	return link
}

func (l *kafkaLink) enabled() bool { return len(l.brokers) > 0 }

func (l *kafkaLink) close(logger *log.Entry) {
	if l.producer == nil {
		return
	}
	if err := l.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// checker — необязательная проверка: отказ Kafka переводит сервис в degraded.
func (l *kafkaLink) checker() healthcheck.Checker {
	return healthcheck.NewOptional("kafka", func(context.Context) error {
		switch {
		case l.producer != nil:
			return nil
		case l.err != nil:
			return fmt.Errorf("%w: %v", errKafkaUnavailable, l.err)
		default:
			return errKafkaUnavailable
		}
	})
}

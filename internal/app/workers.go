package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/stayawake/internal/metrics"
	"github.com/vladislavdragonenkov/stayawake/internal/service/idempotency"
	"github.com/vladislavdragonenkov/stayawake/internal/service/outbox"
)

const workerStopTimeout = 5 * time.Second

// backgroundWorker — запущенная горутина с функцией остановки.
type backgroundWorker struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

func startWorker(ctx context.Context, name string, run func(ctx context.Context)) *backgroundWorker {
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(workerCtx)
	}()
	return &backgroundWorker{name: name, cancel: cancel, done: done}
}

// stop отменяет воркер и ждёт завершения не дольше workerStopTimeout.
func (w *backgroundWorker) stop(logger *log.Entry) {
	if w == nil {
		return
	}
	shutdownWorker(w.cancel, w.done, logger.WithField("worker", w.name))
}

func shutdownWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info("worker stopped")
	case <-time.After(workerStopTimeout):
		logger.Warn("worker stop timed out")
	}
}

// startOutboxWorker запускает публикацию outbox в Kafka. Без producer outbox
// копится в хранилище и будет опубликован после подключения брокера.
func startOutboxWorker(ctx context.Context, cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) *backgroundWorker {
	if producer == nil {
		logger.Warn("kafka is not configured, order events stay in outbox")
		return nil
	}

	relay := outbox.NewRelay(repo, kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents), outbox.Config{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		RetryDelay:   cfg.OutboxRetryDelay,
		DeadLetters:  kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
		Logger:       logger.WithField("component", "outbox-relay"),
		Metrics:      metrics.NewOutboxMetrics(),
	})
	logger.WithFields(log.Fields{
		"topic":         kafka.TopicOrderEvents,
		"dlq_topic":     kafka.TopicDeadLetterQueue,
		"poll_interval": cfg.OutboxPollInterval,
	}).Info("outbox relay started")
	return startWorker(ctx, "outbox-relay", relay.Run)
}

// startIdempotencyCleanup запускает удаление просроченных idempotency-ключей.
func startIdempotencyCleanup(ctx context.Context, cfg Config, repo domain.IdempotencyRepository, logger *log.Entry) *backgroundWorker {
	if repo == nil {
		return nil
	}
	janitor := idempotency.NewJanitor(repo, idempotency.JanitorConfig{
		Interval:  cfg.IdempotencyCleanupInterval,
		BatchSize: cfg.IdempotencyCleanupBatchSize,
		Logger:    logger.WithField("component", "idempotency-janitor"),
		Metrics:   metrics.NewCleanupMetrics(),
	})
	return startWorker(ctx, "idempotency-janitor", janitor.Run)
}

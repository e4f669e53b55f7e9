// Package outbox доставляет события заказов и платежей из таблицы outbox в брокер.
//
// Сообщения попадают в outbox в одной транзакции с заказом или платежом, поэтому
// Relay видит только зафиксированные изменения и публикует их at-least-once.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/metrics"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 50 * time.Millisecond
	maxRetryDelay       = 5 * time.Second
	repoTimeout         = 5 * time.Second
)

// Config — параметры Relay. Нулевые значения заменяются значениями по умолчанию.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// RetryDelay — пауза после первой неудачи, далее удваивается до maxRetryDelay.
	// Ноль отключает паузы.
	RetryDelay time.Duration
	// DeadLetters получает сообщение, которое не удалось доставить за MaxAttempts.
	DeadLetters domain.OutboxPublisher
	Logger      *log.Entry
	Metrics     *metrics.OutboxMetrics
	Clock       func() time.Time
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Logger == nil {
		c.Logger = log.WithField("component", "outbox-relay")
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Relay переносит pending-сообщения outbox в publisher.
type Relay struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       Config
}

func NewRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config) *Relay {
	return &Relay{repo: repo, publisher: publisher, cfg: cfg.withDefaults()}
}

// Run опрашивает outbox раз в PollInterval до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.publisher == nil {
		r.cfg.Logger.Warn("outbox relay is disabled: no repository or publisher")
		return
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		r.Drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type delivery int

const (
	delivered delivery = iota
	deadLettered
	retryLater
	interrupted
)

// Drain обрабатывает одну порцию outbox и возвращает число доставленных сообщений.
func (r *Relay) Drain(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer r.reportBacklog(ctx)

	batch, err := r.pull(ctx)
	if err != nil {
		r.cfg.Logger.WithError(err).Warn("outbox pull failed, retrying next tick")
		return 0
	}

	published := 0
	for _, msg := range batch {
		switch r.deliver(ctx, msg) {
		case delivered:
			published++
		case interrupted:
			return published
		}
	}
	return published
}

func (r *Relay) deliver(ctx context.Context, msg domain.OutboxMessage) delivery {
	entry := r.cfg.Logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
		"order_id":   msg.AggregateID,
	})

	if err := r.publishWithBackoff(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return interrupted
		}
		entry.WithError(err).Error("order event undeliverable, moving to dead letters")
		r.cfg.Metrics.RecordPublishAttempt("failed")
		if dlqErr := r.deadLetter(msg, err); dlqErr != nil {
			entry.WithError(dlqErr).Warn("dead letter publish failed")
			r.cfg.Metrics.RecordPublishAttempt("dlq_failed")
		}
		if err := r.withRepoTimeout(ctx, func(ctx context.Context) error { return r.repo.MarkFailed(ctx, msg.ID) }); err != nil {
			entry.WithError(err).Warn("mark outbox message failed")
		}
		return deadLettered
	}

	if err := r.withRepoTimeout(ctx, func(ctx context.Context) error { return r.repo.MarkSent(ctx, msg.ID) }); err != nil {
		// Сообщение уйдёт повторно на следующем тике: доставка at-least-once.
		entry.WithError(err).Warn("mark outbox message sent")
		return retryLater
	}
	return delivered
}

func (r *Relay) publishWithBackoff(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if lastErr = r.publisher.Publish(msg); lastErr == nil {
			r.cfg.Metrics.RecordPublishAttempt("sent")
			return nil
		}
		r.cfg.Metrics.RecordPublishAttempt("retry_error")
		if attempt == r.cfg.MaxAttempts {
			break
		}
		if pause := r.backoff(attempt); pause > 0 {
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, r.cfg.MaxAttempts, lastErr)
}

// backoff — пауза после неудачной попытки attempt: RetryDelay * 2^(attempt-1), не больше maxRetryDelay.
func (r *Relay) backoff(attempt int) time.Duration {
	if r.cfg.RetryDelay <= 0 {
		return 0
	}
	pause := r.cfg.RetryDelay
	for i := 1; i < attempt && pause < maxRetryDelay; i++ {
		pause *= 2
	}
	return min(pause, maxRetryDelay)
}

func (r *Relay) pull(ctx context.Context) ([]domain.OutboxMessage, error) {
	var batch []domain.OutboxMessage
	err := r.withRepoTimeout(ctx, func(ctx context.Context) error {
		var err error
		batch, err = r.repo.PullPending(ctx, r.cfg.BatchSize)
		return err
	})
	return batch, err
}

func (r *Relay) withRepoTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()
	return fn(ctx)
}

func (r *Relay) reportBacklog(ctx context.Context) {
	if r.cfg.Metrics == nil || ctx.Err() != nil {
		return
	}
	var stats domain.OutboxStats
	err := r.withRepoTimeout(ctx, func(ctx context.Context) error {
		var err error
		stats, err = r.repo.Stats(ctx)
		return err
	})
	if err != nil {
		r.cfg.Logger.WithError(err).Debug("outbox backlog stats unavailable")
		return
	}
	var age time.Duration
	if !stats.OldestPendingAt.IsZero() {
		age = r.cfg.Clock().Sub(stats.OldestPendingAt)
	}
	r.cfg.Metrics.SetBacklog(stats.PendingCount, age)
}

func (r *Relay) deadLetter(msg domain.OutboxMessage, cause error) error {
	if r.cfg.DeadLetters == nil {
		return nil
	}
	body, err := json.Marshal(domain.NewDeadLetter(msg, cause, r.cfg.Clock()))
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	letter := msg
	letter.Payload = body
	if err := r.cfg.DeadLetters.Publish(letter); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

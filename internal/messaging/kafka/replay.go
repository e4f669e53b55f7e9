package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const (
	DefaultReplayLimit       = 100
	DefaultReplayIdleTimeout = 2 * time.Second
)

// ErrNotReplayable — сообщение DLQ не содержит исходного события.
var ErrNotReplayable = errors.New("dlq message has no original event")

// ReplayConfig описывает один проход по DLQ.
type ReplayConfig struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	// Execute=false — dry-run: кандидаты только логируются.
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

// Validate заполняет значения по умолчанию и проверяет конфигурацию.
func (c ReplayConfig) Validate() (ReplayConfig, error) {
	if strings.TrimSpace(c.SourceTopic) == "" {
		c.SourceTopic = TopicDeadLetterQueue
	}
	if strings.TrimSpace(c.TargetTopic) == "" {
		c.TargetTopic = TopicOrderEvents
	}
	if c.SourceTopic == c.TargetTopic {
		return c, fmt.Errorf("source and target topic must differ, got %q", c.SourceTopic)
	}
	if c.Limit < 0 {
		return c, fmt.Errorf("limit must be > 0")
	}
	if c.Limit == 0 {
		c.Limit = DefaultReplayLimit
	}
	if c.IdleTimeout < 0 {
		return c, fmt.Errorf("idle timeout must be > 0")
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultReplayIdleTimeout
	}
	return c, nil
}

// OffsetSource — часть sarama.Client, нужная для определения границ партиций.
type OffsetSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

// PartitionSource — часть sarama.Consumer.
type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error)
}

// ReplayStats — итог прохода.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

// Replayer возвращает события из DLQ в основной topic.
type Replayer struct {
	cfg      ReplayConfig
	offsets  OffsetSource
	source   PartitionSource
	producer *Producer
	logger   *log.Entry
	now      func() time.Time
}

// NewReplayer создаёт Replayer. producer обязателен только при cfg.Execute.
func NewReplayer(cfg ReplayConfig, offsets OffsetSource, source PartitionSource, producer *Producer) (*Replayer, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if offsets == nil || source == nil {
		return nil, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.Execute && producer == nil {
		return nil, fmt.Errorf("producer is required in execute mode")
	}
	return &Replayer{
		cfg:      cfg,
		offsets:  offsets,
		source:   source,
		producer: producer,
		logger:   log.WithField("component", "dlq-replay"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run просматривает партиции DLQ по возрастанию номера, пока не наберёт Limit сообщений.
func (r *Replayer) Run(ctx context.Context) (ReplayStats, error) {
	var total ReplayStats

	partitions, err := r.offsets.Partitions(r.cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.SourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := r.cfg.Limit - total.Processed
		if remaining <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, partition, remaining)
		total.Processed += stats.Processed
		total.Replayed += stats.Replayed
		total.Skipped += stats.Skipped
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if r.cfg.Execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats
	topic := r.cfg.SourceTopic

	oldest, err := r.offsets.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	// OffsetNewest — offset следующего сообщения, т.е. граница снимка.
	end, err := r.offsets.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if end <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.FromNewest && end-int64(limit) > oldest {
		start = end - int64(limit)
	}

	pc, err := r.source.ConsumePartition(topic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.IdleTimeout)
	defer idle.Stop()

	errs := pc.Errors()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.IdleTimeout)

			stats.Processed++
			if err := r.replayMessage(msg); err != nil {
				if !errors.Is(err, ErrNotReplayable) {
					return stats, err
				}
				stats.Skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip dlq message")
			} else {
				stats.Replayed++
			}

			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *Replayer) replayMessage(msg *sarama.ConsumerMessage) error {
	envelope, err := ExtractReplay(msg.Value, r.now())
	if err != nil {
		return err
	}

	entry := r.logger.WithFields(log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"target_topic": r.cfg.TargetTopic,
		"event_type":   envelope.EventType,
		"key":          envelope.Key(),
	})
	if !r.cfg.Execute {
		entry.Info("dlq replay candidate")
		return nil
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode replay envelope: %w", err)
	}
	if _, err := r.producer.Send(Message{
		Topic: r.cfg.TargetTopic,
		Key:   envelope.Key(),
		Value: value,
		Headers: map[string]string{
			HeaderEventType:     envelope.EventType,
			HeaderAggregateType: envelope.AggregateType,
			HeaderReplayedAt:    r.now().Format(time.RFC3339),
		},
	}); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	entry.Info("dlq message replayed")
	return nil
}

// ExtractReplay восстанавливает исходный конверт из сообщения DLQ.
// Сообщения без исходного события дают ErrNotReplayable.
func ExtractReplay(value []byte, now time.Time) (Envelope, error) {
	var outer Envelope
	if err := json.Unmarshal(value, &outer); err != nil {
		return Envelope{}, fmt.Errorf("%w: decode envelope: %v", ErrNotReplayable, err)
	}
	if len(outer.Payload) == 0 || string(outer.Payload) == "null" {
		return Envelope{}, fmt.Errorf("%w: empty envelope payload", ErrNotReplayable)
	}

	var dlq domain.DeadLetter
	if err := json.Unmarshal(outer.Payload, &dlq); err != nil {
		return Envelope{}, fmt.Errorf("%w: decode dead letter: %v", ErrNotReplayable, err)
	}
	if !dlq.Replayable() {
		return Envelope{}, fmt.Errorf("%w: original event missing", ErrNotReplayable)
	}

	return Envelope{
		ID:            firstNonEmpty(dlq.OutboxID, outer.ID),
		AggregateType: firstNonEmpty(dlq.AggregateType, outer.AggregateType),
		AggregateID:   firstNonEmpty(dlq.AggregateID, outer.AggregateID),
		EventType:     firstNonEmpty(dlq.EventType, outer.EventType),
		Payload:       dlq.Event,
		PublishedAt:   now.UTC(),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

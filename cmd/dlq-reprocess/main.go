package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/messaging/kafka"
)

type config struct {
	brokers []string
	replay  kafka.ReplayConfig
}

// replayDeps — клиенты Kafka для одного прохода по DLQ.
type replayDeps struct {
	offsets  kafka.OffsetSource
	source   kafka.PartitionSource
	producer *kafka.Producer
	closers  []io.Closer
}

func (d replayDeps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i].Close()
	}
}

// newReplayDependencies подменяется в тестах.
var newReplayDependencies = func(cfg config) (replayDeps, error) {
	client, err := sarama.NewClient(cfg.brokers, kafka.ClientConfig("stayawake-dlq-reprocess"))
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}
	deps := replayDeps{offsets: client, closers: []io.Closer{client}}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		deps.close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps.source = consumer
	deps.closers = append(deps.closers, consumer)

	if cfg.replay.Execute {
		syncProducer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			deps.close()
			return replayDeps{}, fmt.Errorf("create kafka producer: %w", err)
		}
		deps.producer = kafka.NewProducerFrom(syncProducer)
		deps.closers = append(deps.closers, deps.producer)
	}
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

// parseConfig разбирает флаги; брокеры без -brokers берутся из KAFKA_BROKERS.
func parseConfig(args []string, getenv func(string) string) (config, error) {
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	brokers := fs.String("brokers", "", "comma-separated Kafka brokers (default $KAFKA_BROKERS)")
	replay := kafka.ReplayConfig{}
	fs.StringVar(&replay.SourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead-letter topic to read")
	fs.StringVar(&replay.TargetTopic, "target-topic", kafka.TopicOrderEvents, "topic to re-publish into")
	fs.IntVar(&replay.Limit, "limit", kafka.DefaultReplayLimit, "messages to scan across all partitions")
	fs.BoolVar(&replay.Execute, "execute", false, "publish replayed events (dry run otherwise)")
	fs.BoolVar(&replay.FromNewest, "from-newest", false, "start from the newest messages within limit")
	fs.DurationVar(&replay.IdleTimeout, "idle-timeout", kafka.DefaultReplayIdleTimeout, "stop a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	raw := *brokers
	if strings.TrimSpace(raw) == "" {
		raw = getenv("KAFKA_BROKERS")
	}
	cfg := config{brokers: parseBrokers(raw), replay: replay}

	for _, check := range []struct {
		bad bool
		msg string
	}{
		{len(cfg.brokers) == 0, "kafka brokers are required (-brokers or KAFKA_BROKERS)"},
		{strings.TrimSpace(replay.SourceTopic) == "", "source-topic is required"},
		{strings.TrimSpace(replay.TargetTopic) == "", "target-topic is required"},
		{replay.Limit <= 0, "limit must be > 0"},
		{replay.IdleTimeout <= 0, "idle-timeout must be > 0"},
	} {
		if check.bad {
			return config{}, errors.New(check.msg)
		}
	}

	validated, err := replay.Validate()
	if err != nil {
		return config{}, err
	}
	cfg.replay = validated
	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for broker := range strings.SplitSeq(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithFields(log.Fields{
		"source_topic": cfg.replay.SourceTopic,
		"target_topic": cfg.replay.TargetTopic,
		"limit":        cfg.replay.Limit,
		"execute":      cfg.replay.Execute,
		"from_newest":  cfg.replay.FromNewest,
	})
	logger.Info("starting dlq replay")

	deps, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	replayer, err := kafka.NewReplayer(cfg.replay, deps.offsets, deps.source, deps.producer)
	if err != nil {
		return err
	}

	started := time.Now()
	stats, err := replayer.Run(ctx)
	logger.WithFields(log.Fields{
		"processed":   stats.Processed,
		"replayed":    stats.Replayed,
		"skipped":     stats.Skipped,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("dlq replay finished")
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/messaging/kafka"
)

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, brokers)
	require.Empty(t, parseBrokers(" , "))
}

func noEnv(string) string { return "" }

func TestParseConfig_FromFlags(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=custom.dlq",
		"-target-topic=custom.events",
		"-limit=10",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
	}, noEnv)
	require.NoError(t, err)
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.brokers)
	require.Equal(t, kafka.ReplayConfig{
		SourceTopic: "custom.dlq",
		TargetTopic: "custom.events",
		Limit:       10,
		Execute:     true,
		FromNewest:  true,
		IdleTimeout: 3 * time.Second,
	}, cfg.replay)
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig([]string{"-brokers=broker:9092"}, noEnv)
	require.NoError(t, err)
	require.Equal(t, kafka.TopicDeadLetterQueue, cfg.replay.SourceTopic)
	require.Equal(t, kafka.TopicOrderEvents, cfg.replay.TargetTopic)
	require.Equal(t, kafka.DefaultReplayLimit, cfg.replay.Limit)
	require.Equal(t, kafka.DefaultReplayIdleTimeout, cfg.replay.IdleTimeout)
	require.False(t, cfg.replay.Execute)
}

func TestParseConfig_Rejects(t *testing.T) {
	cases := map[string]struct {
		args []string
		want string
	}{
		"no brokers":       {[]string{"-brokers= , "}, "kafka brokers are required"},
		"blank source":     {[]string{"-brokers=b:9092", "-source-topic= "}, "source-topic is required"},
		"blank target":     {[]string{"-brokers=b:9092", "-target-topic="}, "target-topic is required"},
		"zero limit":       {[]string{"-brokers=b:9092", "-limit=0"}, "limit must be > 0"},
		"zero idle":        {[]string{"-brokers=b:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
		"same topics":      {[]string{"-brokers=b:9092", "-source-topic=loop", "-target-topic=loop"}, "must differ"},
		"unknown flag":     {[]string{"-brokers=b:9092", "-replay-all"}, "flag provided but not defined"},
		"malformed number": {[]string{"-brokers=b:9092", "-limit=lots"}, "invalid value"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(tc.args, noEnv)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestParseConfig_BrokersFromEnv(t *testing.T) {
	getenv := func(key string) string {
		if key == "KAFKA_BROKERS" {
			return "env-a:9092, env-b:9092"
		}
		return ""
	}

	cfg, err := parseConfig(nil, getenv)
	require.NoError(t, err)
	require.Equal(t, []string{"env-a:9092", "env-b:9092"}, cfg.brokers)

	cfg, err = parseConfig([]string{"-brokers=flag:9092"}, getenv)
	require.NoError(t, err)
	require.Equal(t, []string{"flag:9092"}, cfg.brokers, "flag wins over env")
}

func TestRun_DryRunWithStubbedDeps(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	pc := consumer.ExpectConsumePartition(kafka.TopicDeadLetterQueue, 0, 0)
	pc.YieldMessage(&sarama.ConsumerMessage{Value: dlqMessage(t, "order-1")})

	stubDependencies(t, replayDeps{
		offsets: stubOffsets{newest: 1},
		source:  consumer,
	}, nil)

	cfg := config{brokers: []string{"broker:9092"}, replay: kafka.ReplayConfig{Limit: 5, IdleTimeout: time.Second}}
	require.NoError(t, run(context.Background(), cfg))
}

func TestRun_DependencyError(t *testing.T) {
	stubDependencies(t, replayDeps{}, errors.New("out of brokers"))

	err := run(context.Background(), config{brokers: []string{"broker:9092"}})
	require.ErrorContains(t, err, "out of brokers")
}

func TestRun_ExecuteRequiresProducer(t *testing.T) {
	stubDependencies(t, replayDeps{
		offsets: stubOffsets{},
		source:  mocks.NewConsumer(t, nil),
	}, nil)

	err := run(context.Background(), config{replay: kafka.ReplayConfig{Execute: true}})
	require.ErrorContains(t, err, "producer is required")
}

func TestMain_SuccessWithStubbedDeps(t *testing.T) {
	stubDependencies(t, replayDeps{
		offsets: stubOffsets{newest: 0},
		source:  mocks.NewConsumer(t, nil),
	}, nil)

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"dlq-reprocess", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}

	main()
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func stubDependencies(t *testing.T, deps replayDeps, err error) {
	t.Helper()

	old := newReplayDependencies
	newReplayDependencies = func(config) (replayDeps, error) { return deps, err }
	t.Cleanup(func() { newReplayDependencies = old })
}

type stubOffsets struct {
	newest int64
}

func (s stubOffsets) Partitions(string) ([]int32, error) { return []int32{0}, nil }

func (s stubOffsets) GetOffset(_ string, _ int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return 0, nil
	}
	return s.newest, nil
}

func dlqMessage(t *testing.T, orderID string) []byte {
	t.Helper()

	inner, err := json.Marshal(domain.DeadLetter{
		OutboxID:      "evt-" + orderID,
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     domain.EventOrderPlaced,
		Event:         json.RawMessage(`{"order_id":"` + orderID + `"}`),
		Error:         "kafka: client has run out of available brokers",
	})
	require.NoError(t, err)

	value, err := json.Marshal(kafka.NewEnvelope(domain.OutboxMessage{
		ID:            "evt-" + orderID,
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     domain.EventOrderPlaced,
		Payload:       inner,
	}, time.Now()))
	require.NoError(t, err)
	return value
}

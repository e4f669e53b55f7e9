package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/stayawake/internal/health"
)

func TestSplitBrokers(t *testing.T) {
	cases := map[string][]string{
		"":                              nil,
		" , ,":                          nil,
		"kafka:9092":                    {"kafka:9092"},
		"kafka1:9092, kafka2:9092 ,":    {"kafka1:9092", "kafka2:9092"},
		" kafka1:9092 ,, kafka3:9092  ": {"kafka1:9092", "kafka3:9092"},
	}
	for raw, want := range cases {
		assert.Equal(t, want, splitBrokers(raw), "brokers %q", raw)
	}
}

func TestConnectKafka_DisabledWithoutBrokers(t *testing.T) {
	for _, raw := range []string{"", " , "} {
		link := connectKafka(raw, log.WithField("test", "kafka"))
		assert.False(t, link.enabled())
		assert.Nil(t, link.producer)
		assert.NoError(t, link.err)
		link.close(log.WithField("test", "kafka"))
	}
}

func TestConnectKafka_UnreachableBroker(t *testing.T) {
	link := connectKafka("127.0.0.1:1", log.WithField("test", "kafka"))
	require.True(t, link.enabled())
	require.Error(t, link.err)
	require.Nil(t, link.producer)
	link.close(log.WithField("test", "kafka"))

	check := link.checker().Check(context.Background())
	assert.Equal(t, healthcheck.StatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, errKafkaUnavailable.Error())
}

func TestKafkaChecker_IsOptional(t *testing.T) {
	link := &kafkaLink{brokers: []string{"kafka:9092"}}

	check := link.checker().Check(context.Background())
	assert.Equal(t, healthcheck.StatusUnhealthy, check.Status)
	assert.False(t, check.Critical)
	assert.Equal(t, "kafka", check.Name)
	assert.Equal(t, errKafkaUnavailable.Error(), check.Message)
}

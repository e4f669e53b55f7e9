package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_LocalMemoryProfile(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.Empty(t, cfg.PostgresDSN)
	assert.True(t, cfg.PostgresAutoMigrate)
	assert.False(t, cfg.SeedDemo)

	// Внешние зависимости выключены, пока их не включат явно.
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.JWTSecret)
	assert.False(t, cfg.TrustCustomerHeader)
}

func TestDefaultConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()

	positive := map[string]time.Duration{
		"CartCacheTTL":               cfg.CartCacheTTL,
		"RequestTimeout":             cfg.RequestTimeout,
		"OutboxPollInterval":         cfg.OutboxPollInterval,
		"IdempotencyCleanupInterval": cfg.IdempotencyCleanupInterval,
		"ShutdownTimeout":            cfg.ShutdownTimeout,
	}
	for name, d := range positive {
		assert.Positive(t, d, name)
	}
	assert.GreaterOrEqual(t, cfg.OutboxRetryDelay, time.Duration(0))
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Less(t, cfg.IdempotencyCleanupInterval, cfg.IdempotencyTTL)
}

func TestDefaultConfig_Batches(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 3, cfg.OutboxMaxAttempts)
	assert.Equal(t, 500, cfg.IdempotencyCleanupBatchSize)
}

func TestDefaultConfig_ReturnsFreshValue(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	assert.Equal(t, a, b)

	b.StorageDriver = StorageDriverPostgres
	assert.NotEqual(t, a, b)
	assert.Equal(t, StorageDriverMemory, DefaultConfig().StorageDriver)
}

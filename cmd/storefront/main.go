package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/app"
	"github.com/vladislavdragonenkov/stayawake/internal/version"
)

const (
	envLogLevel                    = "STOREFRONT_LOG_LEVEL"
	envHTTPAddr                    = "STOREFRONT_HTTP_ADDR"
	envGRPCAddr                    = "STOREFRONT_GRPC_ADDR"
	envMetricsAddr                 = "STOREFRONT_METRICS_ADDR"
	envStorageDriver               = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN                 = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate         = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envSeedDemo                    = "STOREFRONT_SEED_DEMO"
	envRedisAddr                   = "STOREFRONT_REDIS_ADDR"
	envCartCacheTTL                = "STOREFRONT_CART_CACHE_TTL"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envJWTSecret                   = "STOREFRONT_JWT_SECRET"
	envTrustCustomerHeader         = "STOREFRONT_TRUST_CUSTOMER_HEADER"
	envRequestTimeout              = "STOREFRONT_REQUEST_TIMEOUT"
	envOutboxPollInterval          = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envIdempotencyTTL              = "STOREFRONT_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envShutdownTimeout             = "STOREFRONT_SHUTDOWN_TIMEOUT"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warnf("invalid %s, using info", envLogLevel)
			return
		}
		log.SetLevel(level)
	}
}

// readConfigFromEnv собирает конфигурацию из окружения. Некорректные значения
// не прерывают запуск: остаётся значение по умолчанию, а в warnings попадает описание.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v, using default", key, raw, err))
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			if v = strings.TrimSpace(v); v != "" {
				*dst = v
			}
		}
	}
	boolean := func(key string, dst *bool) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		value, err := parseBool(raw)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = value
	}
	positiveInt := func(key string, dst *int) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		value, err := parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0")
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = value
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		value, err := parseDuration(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = value
	}
	positive := func(v time.Duration) bool { return v > 0 }
	nonNegative := func(v time.Duration) bool { return v >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envRedisAddr, &cfg.RedisAddr)
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envJWTSecret, &cfg.JWTSecret)

	if raw, ok := lookup(envStorageDriver); ok && strings.TrimSpace(raw) != "" {
		driver := strings.ToLower(strings.TrimSpace(raw))
		switch driver {
		case app.StorageDriverMemory, app.StorageDriverPostgres:
			cfg.StorageDriver = driver
		default:
			warn(envStorageDriver, raw, errors.New("must be memory or postgres"))
		}
	}

	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	boolean(envSeedDemo, &cfg.SeedDemo)
	boolean(envTrustCustomerHeader, &cfg.TrustCustomerHeader)

	duration(envCartCacheTTL, &cfg.CartCacheTTL, positive, "must be > 0")
	duration(envRequestTimeout, &cfg.RequestTimeout, positive, "must be > 0")
	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")
	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positive, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	positiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"redis":          cfg.RedisAddr != "",
		"kafka":          cfg.KafkaBrokers != "",
	}).Info("запускаем витрину Stay Awake Coffee")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("витрина остановлена")
}

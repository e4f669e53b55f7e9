package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/cache"
	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/stayawake/internal/health"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/memory"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/postgres"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/seed"
)

// runtimeDeps — хранилище и инфраструктура, выбранные по конфигурации.
type runtimeDeps struct {
	store           domain.Storage
	idempotencyRepo domain.IdempotencyRepository
	cartCache       domain.CartCache
	checkers        map[string]healthcheck.Checker
	closeFns        []func() error
}

func (d *runtimeDeps) onClose(fn func() error) {
	d.closeFns = append(d.closeFns, fn)
}

// close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDeps) close() error {
	var errs []error
	for i := len(d.closeFns) - 1; i >= 0; i-- {
		if err := d.closeFns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closeFns = nil
	return errors.Join(errs...)
}

// initRuntimeDependencies открывает хранилище, кеш корзин и регистрирует проверки здоровья.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDeps, error) {
	deps := &runtimeDeps{checkers: make(map[string]healthcheck.Checker)}

	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		deps.store = store
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		deps.checkers["storage"] = healthcheck.NewCritical("storage", func(context.Context) error { return nil })
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, errors.New("postgres dsn is required for postgres storage driver")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		deps.onClose(store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = deps.close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		deps.store = store
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.checkers["storage"] = healthcheck.NewCritical("storage", store.Ping)
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}

	if cfg.SeedDemo {
		demo, err := seed.Run(ctx, deps.store)
		if err != nil {
			_ = deps.close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
		logger.WithFields(log.Fields{
			"products":    len(demo.Products),
			"addresses":   len(demo.Addresses),
			"customer_id": seed.DemoCustomerID,
		}).Info("demo catalog seeded")
	}

	deps.cartCache = cache.Noop{}
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		redisCache := cache.NewRedisCache(client, cfg.CartCacheTTL)
		// Недоступный Redis не мешает старту: корзина читается из хранилища.
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).WithField("addr", addr).Warn("redis is not reachable, cart cache degraded")
		} else {
			logger.WithField("addr", addr).Info("redis cart cache enabled")
		}
		deps.cartCache = redisCache
		deps.checkers["cart_cache"] = healthcheck.NewOptional("cart_cache", redisCache.Ping)
		deps.onClose(client.Close)
	}

	return deps, nil
}

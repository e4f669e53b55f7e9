package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const pingTimeout = 5 * time.Second

// PoolConfig — параметры пула соединений database/sql.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPool подходит для одного экземпляра витрины.
var DefaultPool = PoolConfig{
	MaxOpen:     25,
	MaxIdle:     25,
	MaxLifetime: 30 * time.Minute,
	MaxIdleTime: 5 * time.Minute,
}

// Store — хранилище витрины в PostgreSQL (драйвер pgx через database/sql).
// Вне транзакции репозитории работают поверх пула.
type Store struct {
	repositories
	db     *sql.DB
	logger *log.Entry
}

// Open подключается с DefaultPool и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	return OpenWithPool(ctx, dsn, DefaultPool)
}

func OpenWithPool(ctx context.Context, dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	store := &Store{
		repositories: repositories{q: db},
		db:           db,
		logger:       log.WithField("component", "postgres"),
	}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB — пул соединений для миграций и тестов.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Do выполняет fn в транзакции READ COMMITTED ровно один раз. Оформление заказа
// защищают блокировка корзины (FOR UPDATE) и условное списание остатка.
// Deadlock и serialization failure возвращаются вызывающему как ошибка хранилища;
// повторять запрос или нет, решает клиент.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, repositories{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// repositories — репозитории поверх пула или открытой транзакции.
type repositories struct {
	q querier
}

func (r repositories) Products() domain.ProductRepository { return &productRepository{q: r.q} }
func (r repositories) Carts() domain.CartRepository { return &cartRepository{q: r.q} }
func (r repositories) Addresses() domain.AddressRepository { return &addressRepository{q: r.q} }
func (r repositories) Orders() domain.OrderRepository { return &orderRepository{q: r.q} }
func (r repositories) Payments() domain.PaymentRepository { return &paymentRepository{q: r.q} }
func (r repositories) Outbox() domain.OutboxRepository { return &outboxRepository{q: r.q} }
func (r repositories) Timeline() domain.TimelineRepository { return &timelineRepository{q: r.q} }

var (
	_ domain.Storage = (*Store)(nil)
	_ domain.Tx      = repositories{}
)

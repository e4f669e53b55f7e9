package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const (
	defaultTTL = 15 * time.Minute
	maxJitter  = 5 * time.Minute
)

// RedisCache хранит CartView в Redis под ключом cart:<customer_id>.
type RedisCache struct {
	client  redis.Cmdable
	baseTTL time.Duration
}

// NewRedisCache создаёт кеш; ttl <= 0 заменяется значением по умолчанию.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, baseTTL: ttl}
}

type cachedLine struct {
	ProductID   int64           `json:"product_id"`
	Quantity    int             `json:"quantity"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	AddedAt     time.Time       `json:"added_at"`
}

type cachedCart struct {
	ID         string          `json:"id"`
	CustomerID int64           `json:"customer_id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Lines      []cachedLine    `json:"lines"`
	Total      decimal.Decimal `json:"total"`
}

func (r *RedisCache) Get(ctx context.Context, customerID int64) (domain.CartView, error) {
	data, err := r.client.Get(ctx, cacheKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CartView{}, ErrCacheMiss
	}
	if err != nil {
		return domain.CartView{}, fmt.Errorf("redis get failed: %w", err)
	}

	var cached cachedCart
	if err := json.Unmarshal(data, &cached); err != nil {
		return domain.CartView{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	view := domain.CartView{
		Cart: domain.Cart{
			ID:         cached.ID,
			CustomerID: cached.CustomerID,
			CreatedAt:  cached.CreatedAt,
			UpdatedAt:  cached.UpdatedAt,
		},
		Lines: make([]domain.CartLine, 0, len(cached.Lines)),
		Total: cached.Total,
	}
	for _, l := range cached.Lines {
		view.Lines = append(view.Lines, domain.CartLine(l))
	}
	return view, nil
}

// Set сохраняет корзину с TTL и случайным разбросом, чтобы записи не истекали одновременно.
func (r *RedisCache) Set(ctx context.Context, customerID int64, view domain.CartView) error {
	cached := cachedCart{
		ID:         view.Cart.ID,
		CustomerID: view.Cart.CustomerID,
		CreatedAt:  view.Cart.CreatedAt,
		UpdatedAt:  view.Cart.UpdatedAt,
		Lines:      make([]cachedLine, 0, len(view.Lines)),
		Total:      view.Total,
	}
	for _, l := range view.Lines {
		cached.Lines = append(cached.Lines, cachedLine(l))
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(maxJitter)))
	if err := r.client.Set(ctx, cacheKey(customerID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, customerID int64) error {
	if err := r.client.Del(ctx, cacheKey(customerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis для readiness-проверки.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func cacheKey(customerID int64) string {
	return "cart:" + strconv.FormatInt(customerID, 10)
}

var _ domain.CartCache = (*RedisCache)(nil)

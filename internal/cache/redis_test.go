package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client, time.Minute), mr
}

func sampleView() domain.CartView {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.NewCartView(
		domain.Cart{ID: "cart-1", CustomerID: 42, CreatedAt: now, UpdatedAt: now},
		[]domain.CartLine{{ProductID: 7, Quantity: 2, ProductName: "Arabica Beans", Price: decimal.RequireFromString("150000.50"), Stock: 50, AddedAt: now}},
	)
}

func TestRedisCache_SetGetRoundTrip(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 42, sampleView()))
	require.True(t, mr.Exists("cart:42"))

	ttl := mr.TTL("cart:42")
	require.GreaterOrEqual(t, ttl, time.Minute)
	require.Less(t, ttl, time.Minute+maxJitter)

	got, err := c.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "cart-1", got.Cart.ID)
	require.Len(t, got.Lines, 1)
	require.Equal(t, "Arabica Beans", got.Lines[0].ProductName)
	require.True(t, got.Lines[0].Price.Equal(decimal.RequireFromString("150000.50")))
	require.True(t, got.Total.Equal(decimal.RequireFromString("300001")))
}

func TestRedisCache_MissAndDelete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx, 1)
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, 1, sampleView()))
	require.NoError(t, c.Delete(ctx, 1))
	require.False(t, mr.Exists("cart:1"))

	// Удаление отсутствующего ключа не ошибка.
	require.NoError(t, c.Delete(ctx, 1))
}

func TestRedisCache_CorruptedEntry(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart:5", "{not json"))

	_, err := c.Get(context.Background(), 5)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_ServerDown(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()

	ctx := context.Background()
	require.Error(t, c.Ping(ctx))
	require.Error(t, c.Set(ctx, 1, sampleView()))
	_, err := c.Get(ctx, 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNoopCache(t *testing.T) {
	ctx := context.Background()
	var c Noop

	require.NoError(t, c.Set(ctx, 1, sampleView()))
	_, err := c.Get(ctx, 1)
	require.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, c.Delete(ctx, 1))
}

// Package cache кеширует представление корзины для чтения.
package cache

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// ErrCacheMiss возвращается, если в кеше нет записи.
var ErrCacheMiss = errors.New("cache miss")

// Noop — кеш, который ничего не хранит (Redis не настроен).
type Noop struct{}

func (Noop) Get(context.Context, int64) (domain.CartView, error) {
	return domain.CartView{}, ErrCacheMiss
}

func (Noop) Set(context.Context, int64, domain.CartView) error { return nil }

func (Noop) Delete(context.Context, int64) error { return nil }

var _ domain.CartCache = Noop{}

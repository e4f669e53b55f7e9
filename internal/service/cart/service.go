// Package cart управляет корзиной клиента.
package cart

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/cache"
	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// Service читает и меняет корзины. Представление корзины кешируется,
// любое изменение сбрасывает кеш клиента.
type Service struct {
	store  domain.Storage
	cache  domain.CartCache
	logger *log.Entry
}

// NewService создаёт сервис корзины. cartCache == nil отключает кеш.
func NewService(store domain.Storage, cartCache domain.CartCache, logger *log.Entry) *Service {
	if cartCache == nil {
		cartCache = cache.Noop{}
	}
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Service{store: store, cache: cartCache, logger: logger}
}

// View возвращает корзину с текущими ценами. Отсутствующая корзина — пустая.
func (s *Service) View(ctx context.Context, customerID int64) (domain.CartView, error) {
	if customerID <= 0 {
		return domain.CartView{}, domain.Validation(domain.ErrCustomerRequired)
	}

	view, err := s.cache.Get(ctx, customerID)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("cart cache read failed")
	}

	view, err = s.load(ctx, customerID)
	if err != nil {
		return domain.CartView{}, err
	}

	if err := s.cache.Set(ctx, customerID, view); err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("cart cache write failed")
	}
	return view, nil
}

func (s *Service) load(ctx context.Context, customerID int64) (domain.CartView, error) {
	cart, err := s.store.Carts().Find(ctx, customerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.NewCartView(domain.Cart{CustomerID: customerID}, nil), nil
	}
	if err != nil {
		return domain.CartView{}, fmt.Errorf("load cart: %w", err)
	}

	lines, err := s.store.Carts().ListLines(ctx, cart.ID)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("list cart lines: %w", err)
	}
	return domain.NewCartView(cart, lines), nil
}

// AddItem кладёт qty единиц товара в корзину; количество суммируется с уже лежащим.
// Итоговое количество не может превышать текущий остаток.
func (s *Service) AddItem(ctx context.Context, customerID, productID int64, qty int) (domain.CartView, error) {
	if customerID <= 0 {
		return domain.CartView{}, domain.Validation(domain.ErrCustomerRequired)
	}
	if err := domain.ValidateQuantity(qty); err != nil {
		return domain.CartView{}, err
	}

	err := s.store.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		product, err := tx.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}

		cart, err := tx.Carts().GetOrCreate(ctx, customerID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		current, err := lineQuantity(ctx, tx, cart.ID, productID)
		if err != nil {
			return err
		}
		if err := domain.ValidateQuantity(current + qty); err != nil {
			return err
		}
		if !product.InStock(current + qty) {
			return &domain.ProductUnavailableError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   current + qty,
				Available:   product.Stock,
			}
		}

		if err := tx.Carts().AddItem(ctx, cart.ID, productID, qty); err != nil {
			return fmt.Errorf("add cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.CartView{}, err
	}

	return s.refresh(ctx, customerID)
}

// SetQuantity задаёт количество позиции, уже лежащей в корзине.
func (s *Service) SetQuantity(ctx context.Context, customerID, productID int64, qty int) (domain.CartView, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return domain.CartView{}, err
	}

	err := s.store.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		cart, err := tx.Carts().Find(ctx, customerID)
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.ErrCartLineNotFound
		}
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}

		product, err := tx.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if !product.InStock(qty) {
			return &domain.ProductUnavailableError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   qty,
				Available:   product.Stock,
			}
		}

		updated, err := tx.Carts().SetQuantity(ctx, cart.ID, productID, qty)
		if err != nil {
			return fmt.Errorf("set cart quantity: %w", err)
		}
		if !updated {
			return domain.ErrCartLineNotFound
		}
		return nil
	})
	if err != nil {
		return domain.CartView{}, err
	}

	return s.refresh(ctx, customerID)
}

// RemoveItem убирает товар из корзины.
func (s *Service) RemoveItem(ctx context.Context, customerID, productID int64) (domain.CartView, error) {
	err := s.store.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		cart, err := tx.Carts().Find(ctx, customerID)
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.ErrCartLineNotFound
		}
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}

		removed, err := tx.Carts().RemoveItem(ctx, cart.ID, productID)
		if err != nil {
			return fmt.Errorf("remove cart item: %w", err)
		}
		if !removed {
			return domain.ErrCartLineNotFound
		}
		return nil
	})
	if err != nil {
		return domain.CartView{}, err
	}

	return s.refresh(ctx, customerID)
}

// refresh сбрасывает кеш и перечитывает корзину из хранилища.
func (s *Service) refresh(ctx context.Context, customerID int64) (domain.CartView, error) {
	if err := s.cache.Delete(ctx, customerID); err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("cart cache invalidation failed")
	}
	return s.View(ctx, customerID)
}

func lineQuantity(ctx context.Context, tx domain.Tx, cartID string, productID int64) (int, error) {
	lines, err := tx.Carts().ListLines(ctx, cartID)
	if err != nil {
		return 0, fmt.Errorf("list cart lines: %w", err)
	}
	for _, line := range lines {
		if line.ProductID == productID {
			return line.Quantity, nil
		}
	}
	return 0, nil
}

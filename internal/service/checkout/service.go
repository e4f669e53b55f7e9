// Package checkout превращает корзину клиента в заказ.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/metrics"
	"github.com/vladislavdragonenkov/stayawake/internal/service/orderevents"
)

// Service оформляет заказы. Всё оформление идёт в одной транзакции хранилища:
// при любой ошибке не остаётся ни заказа, ни позиций, ни списаний, корзина не меняется.
type Service struct {
	uow     domain.UnitOfWork
	cache   domain.CartCache
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithCartCache задаёт кеш корзин, который сбрасывается после оформления.
func WithCartCache(cache domain.CartCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics задаёт метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис оформления заказов.
func NewService(uow domain.UnitOfWork, options ...Option) *Service {
	s := &Service{
		uow: uow,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "checkout")
	}
	return s
}

// PlaceOrder оформляет заказ из корзины клиента на адрес addressID.
// Автоматических повторов нет: StockConflictError возвращается клиенту.
func (s *Service) PlaceOrder(ctx context.Context, customerID, addressID int64) (domain.PlacedOrder, error) {
	start := time.Now()
	entry := s.logger.WithFields(log.Fields{
		"customer_id": customerID,
		"address_id":  addressID,
	})

	placed, lines, err := s.placeOrder(ctx, customerID, addressID)
	if err != nil {
		s.metrics.RecordFailure(FailureReason(err), time.Since(start))
		if domain.IsBusinessError(err) {
			entry.WithError(err).Info("checkout rejected")
		} else {
			entry.WithError(err).Error("checkout failed")
		}
		return domain.PlacedOrder{}, err
	}

	s.metrics.RecordOrderPlaced(lines, time.Since(start))
	s.invalidateCart(ctx, entry, customerID)
	entry.WithFields(log.Fields{
		"order_id":    placed.OrderID,
		"total_price": placed.TotalPrice.String(),
		"lines":       lines,
	}).Info("order placed")

	return placed, nil
}

func (s *Service) placeOrder(ctx context.Context, customerID, addressID int64) (domain.PlacedOrder, int, error) {
	if customerID <= 0 {
		return domain.PlacedOrder{}, 0, domain.Validation(domain.ErrCustomerRequired)
	}
	if addressID <= 0 {
		return domain.PlacedOrder{}, 0, domain.Validation(domain.ErrAddressRequired)
	}

	var (
		placed    domain.PlacedOrder
		lineCount int
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		cart, cartLines, err := lockedCart(ctx, tx, customerID)
		if err != nil {
			return err
		}

		if err := checkAddress(ctx, tx, customerID, addressID); err != nil {
			return err
		}

		products, err := snapshotProducts(ctx, tx, cartLines)
		if err != nil {
			return err
		}

		// Позиции заказа в порядке корзины, цены из снимка выше.
		orderLines := make([]domain.OrderLine, 0, len(cartLines))
		for _, line := range cartLines {
			orderLines = append(orderLines, domain.NewOrderLine("", products[line.ProductID], line.Quantity))
		}
		total := domain.LinesTotal(orderLines)

		orderID, err := tx.Orders().Create(ctx, customerID, addressID, total)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := tx.Orders().AddLines(ctx, orderID, orderLines); err != nil {
			return fmt.Errorf("add order lines: %w", err)
		}

		if err := decrementStock(ctx, tx, orderLines); err != nil {
			return err
		}

		if _, err := tx.Carts().Clear(ctx, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		now := s.now()
		order := domain.Order{
			ID:         orderID,
			CustomerID: customerID,
			AddressID:  addressID,
			TotalPrice: total,
			Status:     domain.OrderStatusPending,
			Lines:      orderLines,
		}
		if err := orderevents.Emit(ctx, tx, orderID, domain.EventOrderPlaced,
			domain.OrderPlacedEntry(total, now),
			orderevents.NewOrderPlaced(order, now),
		); err != nil {
			return err
		}

		placed = domain.PlacedOrder{OrderID: orderID, TotalPrice: total}
		lineCount = len(orderLines)
		return nil
	})
	if err != nil {
		return domain.PlacedOrder{}, 0, err
	}
	return placed, lineCount, nil
}

// lockedCart блокирует корзину до конца транзакции и читает её позиции.
// Повторное оформление той же корзины ждёт блокировку и видит пустую корзину.
func lockedCart(ctx context.Context, tx domain.Tx, customerID int64) (domain.Cart, []domain.CartLine, error) {
	cart, err := tx.Carts().GetOrCreate(ctx, customerID)
	if err != nil {
		return domain.Cart{}, nil, fmt.Errorf("load cart: %w", err)
	}
	if err := tx.Carts().Lock(ctx, cart.ID); err != nil {
		return domain.Cart{}, nil, fmt.Errorf("lock cart: %w", err)
	}
	lines, err := tx.Carts().ListLines(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, nil, fmt.Errorf("list cart lines: %w", err)
	}
	if len(lines) == 0 {
		return domain.Cart{}, nil, domain.ErrEmptyCart
	}
	return cart, lines, nil
}

// checkAddress не различает отсутствующий и чужой адрес.
func checkAddress(ctx context.Context, tx domain.Tx, customerID, addressID int64) error {
	address, err := tx.Addresses().FindByID(ctx, addressID)
	if errors.Is(err, domain.ErrAddressNotFound) {
		return domain.ErrInvalidAddress
	}
	if err != nil {
		return fmt.Errorf("load address: %w", err)
	}
	if !address.OwnedBy(customerID) {
		return domain.ErrInvalidAddress
	}
	return nil
}

// snapshotProducts перечитывает товары и проверяет остаток по текущим данным.
func snapshotProducts(ctx context.Context, tx domain.Tx, lines []domain.CartLine) (map[int64]domain.Product, error) {
	products := make(map[int64]domain.Product, len(lines))
	for _, line := range lines {
		product, err := tx.Products().FindByID(ctx, line.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, &domain.ProductUnavailableError{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Requested:   line.Quantity,
			}
		}
		if err != nil {
			return nil, fmt.Errorf("load product %d: %w", line.ProductID, err)
		}
		if !product.InStock(line.Quantity) {
			return nil, &domain.ProductUnavailableError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.Stock,
			}
		}
		products[product.ID] = product
	}
	return products, nil
}

// decrementStock списывает остатки в порядке возрастания id товара,
// чтобы параллельные оформления брали блокировки строк в одном порядке.
func decrementStock(ctx context.Context, tx domain.Tx, lines []domain.OrderLine) error {
	ordered := append([]domain.OrderLine(nil), lines...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	for _, line := range ordered {
		ok, err := tx.Products().DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", line.ProductID, err)
		}
		if !ok {
			return &domain.StockConflictError{ProductID: line.ProductID, ProductName: line.ProductName}
		}
	}
	return nil
}

func (s *Service) invalidateCart(ctx context.Context, entry *log.Entry, customerID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, customerID); err != nil {
		entry.WithError(err).Warn("failed to invalidate cart cache")
	}
}

// FailureReason возвращает метку причины отказа для метрик.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, domain.ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, domain.ErrStockConflict):
		return "stock_conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "storage"
	}
}

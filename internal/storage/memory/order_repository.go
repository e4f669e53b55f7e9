package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository.
type orderRepository struct {
	view
}

// Create сохраняет новый заказ в статусе pending.
func (r *orderRepository) Create(ctx context.Context, customerID, addressID int64, totalPrice decimal.Decimal) (string, error) {
	switch {
	case customerID <= 0:
		return "", domain.Validation(domain.ErrCustomerRequired)
	case addressID <= 0:
		return "", domain.Validation(domain.ErrAddressRequired)
	case totalPrice.IsNegative():
		return "", domain.Validation(domain.ErrPriceNegative)
	}

	id := uuid.NewString()
	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		now := r.s.now()
		remember(j, st.orders, id)
		st.orders[id] = domain.Order{
			ID:         id,
			CustomerID: customerID,
			AddressID:  addressID,
			TotalPrice: totalPrice,
			Status:     domain.OrderStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *orderRepository) AddLines(ctx context.Context, orderID string, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return domain.Validation(domain.ErrLinesRequired)
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.Validation(domain.ErrQuantityInvalid)
		}
	}

	return r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		order, ok := st.orders[orderID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		remember(j, st.orders, orderID)
		merged := append([]domain.OrderLine(nil), order.Lines...)
		for _, line := range lines {
			if line.ID == "" {
				line.ID = uuid.NewString()
			}
			merged = append(merged, line)
		}
		order.Lines = merged
		st.orders[orderID] = order
		return nil
	})
}

// UpdateStatus меняет статус; допустимость перехода проверяет вызывающий.
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error) {
	var updated bool
	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		order, ok := st.orders[orderID]
		if !ok {
			return nil
		}
		remember(j, st.orders, orderID)
		order.Status = status
		order.UpdatedAt = r.s.now()
		st.orders[orderID] = order
		updated = true
		return nil
	})
	return updated, err
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		o, ok := st.orders[orderID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = cloneOrder(o)
		return nil
	})
	return order, err
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepository) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	result := []domain.Order{}
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		for _, order := range st.orders {
			if order.CustomerID == customerID {
				result = append(result, cloneOrder(order))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return o
}

var _ domain.OrderRepository = (*orderRepository)(nil)

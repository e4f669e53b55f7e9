package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не получена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — платёж получен.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен клиенту.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled — заказ отменён.
	OrderStatusCanceled OrderStatus = "canceled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCanceled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped: {OrderStatusDelivered},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода в next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderLine — позиция заказа со снимком цены на момент оформления.
type OrderLine struct {
	ID          string
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// NewOrderLine фиксирует цену товара и считает итог позиции.
func NewOrderLine(id string, product Product, qty int) OrderLine {
	return OrderLine{
		ID:          id,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    qty,
		UnitPrice:   product.Price,
		LineTotal:   product.Price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// Order — неизменяемая запись заказа; меняется только статус.
type Order struct {
	ID         string
	CustomerID int64
	AddressID  int64
	TotalPrice decimal.Decimal
	Status     OrderStatus
	Lines      []OrderLine
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID <= 0 {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.AddressID <= 0 {
		errs = append(errs, ErrAddressRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if o.TotalPrice.IsNegative() {
		errs = append(errs, ErrPriceNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	calc := decimal.Zero
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrPriceNegative)
		}
		if !line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Equal(line.LineTotal) {
			errs = append(errs, ErrLineTotalMismatch)
		}
		calc = calc.Add(line.LineTotal)
	}
	if !calc.Equal(o.TotalPrice) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// LinesTotal возвращает сумму итогов позиций.
func LinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// PlacedOrder — результат успешного оформления заказа.
type PlacedOrder struct {
	OrderID    string
	TotalPrice decimal.Decimal
}

// OrderDetails — заказ вместе с адресом доставки и историей статусов.
type OrderDetails struct {
	Order    Order
	Address  *Address
	Payments []Payment
	Timeline []TimelineEvent
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxCartLineQuantity ограничивает количество одного товара в корзине.
const MaxCartLineQuantity = 99

// Cart — корзина клиента. Создаётся лениво, после оформления заказа очищается, но не удаляется.
type Cart struct {
	ID         string
	CustomerID int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartLine — позиция корзины, обогащённая текущими данными товара на момент чтения.
type CartLine struct {
	ProductID   int64
	Quantity    int
	ProductName string
	Price       decimal.Decimal
	Stock       int
	AddedAt     time.Time
}

// Subtotal возвращает стоимость позиции по текущей цене.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartView — корзина вместе с позициями для отображения клиенту.
type CartView struct {
	Cart  Cart
	Lines []CartLine
	Total decimal.Decimal
}

// NewCartView считает итог корзины по текущим ценам.
func NewCartView(cart Cart, lines []CartLine) CartView {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	if lines == nil {
		lines = []CartLine{}
	}
	return CartView{Cart: cart, Lines: lines, Total: total}
}

// ValidateQuantity проверяет количество для позиции корзины.
func ValidateQuantity(qty int) error {
	if qty <= 0 || qty > MaxCartLineQuantity {
		return Validation(ErrQuantityInvalid)
	}
	return nil
}

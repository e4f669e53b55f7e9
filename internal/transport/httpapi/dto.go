package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/service/catalog"
)

type productDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Categories  []string        `json:"categories"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type productPageDTO struct {
	Items  []productDTO `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type cartLineDTO struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Stock       int             `json:"stock"`
	AddedAt     time.Time       `json:"addedAt"`
}

type cartDTO struct {
	CartID string          `json:"cartId,omitempty"`
	Lines  []cartLineDTO   `json:"lines"`
	Total  decimal.Decimal `json:"total"`
}

type orderLineDTO struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type orderDTO struct {
	ID         string          `json:"id"`
	AddressID  int64           `json:"addressId"`
	Status     string          `json:"status"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Lines      []orderLineDTO  `json:"lines,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type addressDTO struct {
	ID         int64  `json:"id"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

type paymentDTO struct {
	ID            string          `json:"id"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	PaidAt        time.Time       `json:"paidAt"`
}

type timelineDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurredAt"`
}

type orderDetailsDTO struct {
	orderDTO
	Address  *addressDTO   `json:"address"`
	Payments []paymentDTO  `json:"payments"`
	Timeline []timelineDTO `json:"timeline"`
}

type placeOrderRequest struct {
	AddressID int64 `json:"addressId"`
}

type placeOrderResponse struct {
	OrderID    string          `json:"orderId"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type recordPaymentRequest struct {
	OrderID       string          `json:"orderId"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	TransactionID string          `json:"transactionId"`
}

type recordPaymentResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

type addCartItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type setCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func toProductDTO(p domain.Product) productDTO {
	categories := p.Categories
	if categories == nil {
		categories = []string{}
	}
	return productDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Categories:  categories,
		CreatedAt:   p.CreatedAt,
	}
}

func toProductPageDTO(page catalog.Page) productPageDTO {
	items := make([]productDTO, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, toProductDTO(p))
	}
	return productPageDTO{Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset}
}

func toCartDTO(view domain.CartView) cartDTO {
	lines := make([]cartLineDTO, 0, len(view.Lines))
	for _, l := range view.Lines {
		lines = append(lines, cartLineDTO{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       l.Price,
			Subtotal:    l.Subtotal(),
			Stock:       l.Stock,
			AddedAt:     l.AddedAt,
		})
	}
	return cartDTO{CartID: view.Cart.ID, Lines: lines, Total: view.Total}
}

func toOrderDTO(o domain.Order) orderDTO {
	dto := orderDTO{
		ID:         o.ID,
		AddressID:  o.AddressID,
		Status:     string(o.Status),
		TotalPrice: o.TotalPrice,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	for _, l := range o.Lines {
		dto.Lines = append(dto.Lines, orderLineDTO{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		})
	}
	return dto
}

func toOrderDetailsDTO(d domain.OrderDetails) orderDetailsDTO {
	dto := orderDetailsDTO{
		orderDTO: toOrderDTO(d.Order),
		Payments: make([]paymentDTO, 0, len(d.Payments)),
		Timeline: make([]timelineDTO, 0, len(d.Timeline)),
	}
	if d.Address != nil {
		dto.Address = &addressDTO{
			ID:         d.Address.ID,
			Phone:      d.Address.Phone,
			Street:     d.Address.Street,
			City:       d.Address.City,
			PostalCode: d.Address.PostalCode,
		}
	}
	for _, p := range d.Payments {
		dto.Payments = append(dto.Payments, paymentDTO{
			ID:            p.ID,
			Method:        p.Method,
			Status:        string(p.Status),
			TransactionID: p.TransactionID,
			AmountPaid:    p.AmountPaid,
			PaidAt:        p.PaidAt,
		})
	}
	for _, e := range d.Timeline {
		dto.Timeline = append(dto.Timeline, timelineDTO{Type: string(e.Type), Reason: e.Reason, Occurred: e.Occurred})
	}
	return dto
}

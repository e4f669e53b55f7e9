package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	product := domain.Product{ID: 7, Name: "Arabica Beans", Price: decimal.RequireFromString("150000")}
	line := domain.NewOrderLine("line-1", product, 2)
	return domain.Order{
		ID:         "order-1",
		CustomerID: 42,
		AddressID:  5,
		TotalPrice: line.LineTotal,
		Status:     domain.OrderStatusPending,
		Lines:      []domain.OrderLine{line},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no customer",
			mut:  func(o *domain.Order) { o.CustomerID = 0 },
			want: domain.ErrCustomerRequired,
		},
		{
			name: "no address",
			mut:  func(o *domain.Order) { o.AddressID = 0 },
			want: domain.ErrAddressRequired,
		},
		{
			name: "no lines",
			mut:  func(o *domain.Order) { o.Lines = nil },
			want: domain.ErrLinesRequired,
		},
		{
			name: "qty invalid",
			mut:  func(o *domain.Order) { o.Lines[0].Quantity = 0 },
			want: domain.ErrQuantityInvalid,
		},
		{
			name: "line total drift",
			mut:  func(o *domain.Order) { o.Lines[0].LineTotal = decimal.RequireFromString("1") },
			want: domain.ErrLineTotalMismatch,
		},
		{
			name: "total mismatch",
			mut:  func(o *domain.Order) { o.TotalPrice = decimal.RequireFromString("999") },
			want: domain.ErrTotalMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			// Копируем позиции, чтобы мутация не затронула другие сценарии.
			order.Lines = append([]domain.OrderLine(nil), order.Lines...)
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if !errors.Is(errors.Join(errs...), tc.want) {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestNewOrderLineSnapshotsPrice(t *testing.T) {
	product := domain.Product{ID: 1, Name: "Kenya AA", Price: decimal.RequireFromString("12.50")}
	line := domain.NewOrderLine("l", product, 3)

	product.Price = decimal.RequireFromString("99")

	if !line.UnitPrice.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("unit price changed with product: %s", line.UnitPrice)
	}
	if !line.LineTotal.Equal(decimal.RequireFromString("37.50")) {
		t.Fatalf("line total = %s, want 37.50", line.LineTotal)
	}
	if line.ProductName != "Kenya AA" {
		t.Fatalf("product name = %q", line.ProductName)
	}
}

func TestLinesTotalUsesExactDecimal(t *testing.T) {
	lines := []domain.OrderLine{
		{LineTotal: decimal.RequireFromString("0.10")},
		{LineTotal: decimal.RequireFromString("0.20")},
	}
	if got := domain.LinesTotal(lines); !got.Equal(decimal.RequireFromString("0.30")) {
		t.Fatalf("LinesTotal = %s, want 0.30", got)
	}
	if got := domain.LinesTotal(nil); !got.IsZero() {
		t.Fatalf("LinesTotal(nil) = %s, want 0", got)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusPaid, true},
		{domain.OrderStatusPending, domain.OrderStatusCanceled, true},
		{domain.OrderStatusPending, domain.OrderStatusShipped, false},
		{domain.OrderStatusPaid, domain.OrderStatusShipped, true},
		{domain.OrderStatusPaid, domain.OrderStatusPending, false},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, true},
		{domain.OrderStatusShipped, domain.OrderStatusCanceled, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCanceled, false},
		{domain.OrderStatusCanceled, domain.OrderStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Fatalf("CanTransitionTo = %v, want %v", got, tt.want)
			}
		})
	}

	if domain.OrderStatus("lost").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

// Package orderevents записывает события заказа в outbox и timeline
// внутри транзакции вызывающего.
package orderevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// PlacedLine — позиция в событии order.placed.
type PlacedLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// OrderPlaced — полезная нагрузка order.placed.
type OrderPlaced struct {
	OrderID    string          `json:"order_id"`
	CustomerID int64           `json:"customer_id"`
	AddressID  int64           `json:"address_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Lines      []PlacedLine    `json:"lines"`
	Timestamp  time.Time       `json:"ts"`
}

// PaymentRecorded — полезная нагрузка payment.recorded.
type PaymentRecorded struct {
	OrderID       string          `json:"order_id"`
	PaymentID     string          `json:"payment_id"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Timestamp     time.Time       `json:"ts"`
}

// StatusChanged — полезная нагрузка order.status_changed.
type StatusChanged struct {
	OrderID   string             `json:"order_id"`
	From      domain.OrderStatus `json:"from"`
	To        domain.OrderStatus `json:"to"`
	Reason    string             `json:"reason,omitempty"`
	Timestamp time.Time          `json:"ts"`
}

// NewOrderPlaced собирает событие из созданного заказа.
func NewOrderPlaced(order domain.Order, ts time.Time) OrderPlaced {
	lines := make([]PlacedLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, PlacedLine{
			ProductID: line.ProductID,
			Name:      line.ProductName,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return OrderPlaced{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		AddressID:  order.AddressID,
		TotalPrice: order.TotalPrice,
		Lines:      lines,
		Timestamp:  ts,
	}
}

// Emit ставит сообщение в outbox и добавляет событие в timeline заказа.
// Ошибка любого из шагов должна откатить транзакцию вызывающего.
func Emit(ctx context.Context, tx domain.Tx, orderID, eventType string, timeline domain.TimelineEvent, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     timeline.Occurred,
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}

	timeline.OrderID = orderID
	if err := tx.Timeline().Append(ctx, timeline); err != nil {
		return fmt.Errorf("append timeline %s: %w", timeline.Type, err)
	}
	return nil
}

// ChangeStatus переводит заказ в next с проверкой перехода и фиксирует событие.
func ChangeStatus(ctx context.Context, tx domain.Tx, order domain.Order, next domain.OrderStatus, reason string, ts time.Time) error {
	if !order.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, order.Status, next)
	}

	updated, err := tx.Orders().UpdateStatus(ctx, order.ID, next)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if !updated {
		return domain.ErrOrderNotFound
	}

	return Emit(ctx, tx, order.ID, domain.EventOrderStatusChanged,
		domain.StatusChangeEntry(order.Status, next, ts),
		StatusChanged{OrderID: order.ID, From: order.Status, To: next, Reason: reason, Timestamp: ts},
	)
}

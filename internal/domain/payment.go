package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние платежа, присланное платёжным шлюзом.
type PaymentStatus string

const (
	// PaymentStatusPending — платёж инициирован, но не подтверждён.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted — деньги получены.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed — шлюз отклонил платёж.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// Settles сообщает, закрывает ли платёж заказ. Таких платежей у заказа не больше одного;
// pending и failed остаются в истории и не мешают следующей попытке.
func (s PaymentStatus) Settles() bool {
	return s == PaymentStatusCompleted
}

// Payment описывает платёж, связанный с заказом.
type Payment struct {
	ID            string
	OrderID       string
	Method        string
	Status        PaymentStatus
	TransactionID string // Может быть пустым, если шлюз не возвращает идентификатор.
	AmountPaid    decimal.Decimal
	PaidAt        time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error
	if strings.TrimSpace(p.OrderID) == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if strings.TrimSpace(p.Method) == "" {
		errs = append(errs, ErrPaymentMethodRequired)
	}
	if !p.Status.Valid() {
		errs = append(errs, ErrPaymentStatusInvalid)
	}
	if p.AmountPaid.IsNegative() {
		errs = append(errs, ErrPaymentAmountNegative)
	}
	return errs
}

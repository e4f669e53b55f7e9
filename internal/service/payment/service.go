// Package payment фиксирует платежи по заказам.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/metrics"
	"github.com/vladislavdragonenkov/stayawake/internal/service/orderevents"
)

// RecordPaymentInput — платёж, присланный платёжным шлюзом или клиентом.
type RecordPaymentInput struct {
	// CustomerID > 0 ограничивает запись заказами этого клиента.
	CustomerID    int64
	OrderID       string
	Method        string
	Status        domain.PaymentStatus
	TransactionID string
	AmountPaid    decimal.Decimal
}

// Service записывает платежи и переводит оплаченные заказы в paid.
type Service struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.PaymentMetrics
	now     func() time.Time
}

// NewService создаёт сервис платежей. logger и m могут быть nil.
func NewService(uow domain.UnitOfWork, logger *log.Entry, m *metrics.PaymentMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "payments")
	}
	return &Service{
		uow:     uow,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordPayment сохраняет платёж. Сумма должна точно совпадать с суммой заказа.
// completed переводит заказ в paid; после него заказ отвергает любой платёж, кроме
// failed (ErrPaymentAlreadyRecorded). pending и failed сохраняются в историю, заказ не двигают.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (domain.Payment, error) {
	entry := s.logger.WithFields(log.Fields{
		"order_id": in.OrderID,
		"method":   in.Method,
		"status":   in.Status,
	})

	payment, err := s.recordPayment(ctx, in)
	if err != nil {
		s.metrics.RecordRejected(RejectReason(err))
		if domain.IsBusinessError(err) {
			entry.WithError(err).Info("payment rejected")
		} else {
			entry.WithError(err).Error("payment recording failed")
		}
		return domain.Payment{}, err
	}

	s.metrics.RecordRecorded(string(payment.Status))
	entry.WithFields(log.Fields{
		"payment_id":  payment.ID,
		"amount_paid": payment.AmountPaid.String(),
	}).Info("payment recorded")
	return payment, nil
}

func (s *Service) recordPayment(ctx context.Context, in RecordPaymentInput) (domain.Payment, error) {
	payment := domain.Payment{
		OrderID:       strings.TrimSpace(in.OrderID),
		Method:        strings.TrimSpace(in.Method),
		Status:        in.Status,
		TransactionID: strings.TrimSpace(in.TransactionID),
		AmountPaid:    in.AmountPaid,
	}
	if errs := payment.Validate(); len(errs) > 0 {
		return domain.Payment{}, domain.Validation(errors.Join(errs...))
	}

	var saved domain.Payment
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().FindByID(ctx, payment.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				return domain.ErrOrderNotFound
			}
			return fmt.Errorf("load order: %w", err)
		}
		if in.CustomerID > 0 && order.CustomerID != in.CustomerID {
			return domain.ErrOrderNotFound
		}

		if !payment.AmountPaid.Equal(order.TotalPrice) {
			return fmt.Errorf("%w: paid %s, order total %s",
				domain.ErrAmountMismatch, payment.AmountPaid.String(), order.TotalPrice.String())
		}

		if payment.Status != domain.PaymentStatusFailed {
			if err := ensureNotSettled(ctx, tx, order.ID); err != nil {
				return err
			}
		}

		now := s.now()
		payment.PaidAt = now
		saved, err = tx.Payments().Create(ctx, payment)
		if err != nil {
			return fmt.Errorf("save payment: %w", err)
		}

		if err := orderevents.Emit(ctx, tx, order.ID, domain.EventPaymentRecorded,
			domain.PaymentEntry(saved, now),
			orderevents.PaymentRecorded{
				OrderID:       order.ID,
				PaymentID:     saved.ID,
				Method:        saved.Method,
				Status:        string(saved.Status),
				TransactionID: saved.TransactionID,
				AmountPaid:    saved.AmountPaid,
				Timestamp:     now,
			},
		); err != nil {
			return err
		}

		if saved.Status.Settles() {
			return orderevents.ChangeStatus(ctx, tx, order, domain.OrderStatusPaid, "payment "+saved.ID, now)
		}
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}
	return saved, nil
}

func ensureNotSettled(ctx context.Context, tx domain.Tx, orderID string) error {
	existing, err := tx.Payments().ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	for _, p := range existing {
		if p.Status.Settles() {
			return domain.ErrPaymentAlreadyRecorded
		}
	}
	return nil
}

// RejectReason возвращает метку причины отказа для метрик.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrPaymentAlreadyRecorded):
		return "already_recorded"
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		return "invalid_order_status"
	default:
		return "storage"
	}
}

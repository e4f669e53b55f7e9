package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

type paymentRepository struct {
	q querier
}

// Create сохраняет платёж. Второй completed-платёж по заказу отсекается
// частичным индексом ux_payments_settled_order и возвращается как ErrPaymentAlreadyRecorded.
func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if errs := payment.Validate(); len(errs) > 0 {
		return domain.Payment{}, domain.Validation(errors.Join(errs...))
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO payments (id, order_id, method, status, transaction_id, amount_paid, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING paid_at
	`,
		payment.ID, payment.OrderID, payment.Method, string(payment.Status),
		payment.TransactionID, payment.AmountPaid, nullTime(payment.PaidAt),
	).Scan(&payment.PaidAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Payment{}, domain.ErrPaymentAlreadyRecorded
		}
		if _, ok := foreignKeyViolation(err); ok {
			return domain.Payment{}, domain.ErrOrderNotFound
		}
		return domain.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return payment, nil
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, method, status, transaction_id, amount_paid, paid_at
		FROM payments
		WHERE order_id = $1
		ORDER BY paid_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var (
			p      domain.Payment
			status string
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &status, &p.TransactionID, &p.AmountPaid, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Status = domain.PaymentStatus(status)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)

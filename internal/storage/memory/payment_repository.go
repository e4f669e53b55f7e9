package memory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// paymentRepository допускает не больше одного completed-платежа на заказ,
// как частичный индекс ux_payments_settled_order в PostgreSQL.
type paymentRepository struct {
	view
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if errs := payment.Validate(); len(errs) > 0 {
		return domain.Payment{}, domain.Validation(errors.Join(errs...))
	}

	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		if _, ok := st.orders[payment.OrderID]; !ok {
			return domain.ErrOrderNotFound
		}
		if payment.Status.Settles() {
			for _, id := range st.orderPayments[payment.OrderID] {
				if st.payments[id].Status.Settles() {
					return domain.ErrPaymentAlreadyRecorded
				}
			}
		}
		if payment.ID == "" {
			payment.ID = uuid.NewString()
		}
		if payment.PaidAt.IsZero() {
			payment.PaidAt = r.s.now()
		}

		remember(j, st.payments, payment.ID)
		remember(j, st.orderPayments, payment.OrderID)
		st.payments[payment.ID] = payment
		st.orderPayments[payment.OrderID] = append(st.orderPayments[payment.OrderID], payment.ID)
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}
	return payment, nil
}

// ListByOrder возвращает платежи заказа в порядке записи.
func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	result := []domain.Payment{}
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		for _, id := range st.orderPayments[orderID] {
			result = append(result, st.payments[id])
		}
		return nil
	})
	return result, err
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)

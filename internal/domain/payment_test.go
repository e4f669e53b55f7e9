package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validPayment() *Payment {
	return &Payment{
		OrderID:    "order-123",
		Method:     "card",
		Status:     PaymentStatusCompleted,
		AmountPaid: decimal.RequireFromString("300000"),
	}
}

func TestPayment_Validate(t *testing.T) {
	assert.Empty(t, validPayment().Validate())

	cases := map[string]struct {
		mutate func(p *Payment)
		want   []error
	}{
		"blank order": {
			mutate: func(p *Payment) { p.OrderID = "" },
			want:   []error{ErrOrderIDRequired},
		},
		"whitespace method": {
			mutate: func(p *Payment) { p.Method = "   " },
			want:   []error{ErrPaymentMethodRequired},
		},
		"refunded is not a payment status": {
			mutate: func(p *Payment) { p.Status = PaymentStatus("refunded") },
			want:   []error{ErrPaymentStatusInvalid},
		},
		"negative amount": {
			mutate: func(p *Payment) { p.AmountPaid = decimal.RequireFromString("-0.01") },
			want:   []error{ErrPaymentAmountNegative},
		},
		"zero amount is allowed": {
			mutate: func(p *Payment) { p.AmountPaid = decimal.Zero },
		},
		"everything wrong": {
			mutate: func(p *Payment) { *p = Payment{AmountPaid: decimal.NewFromInt(-100)} },
			want: []error{
				ErrOrderIDRequired,
				ErrPaymentMethodRequired,
				ErrPaymentStatusInvalid,
				ErrPaymentAmountNegative,
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPayment()
			tc.mutate(p)
			assert.Equal(t, tc.want, p.Validate())
		})
	}
}

func TestPaymentStatusSettles(t *testing.T) {
	assert.True(t, PaymentStatusCompleted.Settles())
	assert.False(t, PaymentStatusPending.Settles(), "pending can be followed by a completed payment")
	assert.False(t, PaymentStatusFailed.Settles(), "failed leaves room for a retry")
}

package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimelineKind — вид записи в истории заказа, которую видит покупатель.
type TimelineKind string

const (
	TimelineOrderPlaced        TimelineKind = "OrderPlaced"
	TimelineOrderStatusChanged TimelineKind = "OrderStatusChanged"
	TimelinePaymentRecorded    TimelineKind = "PaymentRecorded"
)

// TimelineEvent — запись истории заказа. Reason — короткое пояснение для покупателя.
type TimelineEvent struct {
	OrderID  string
	Type     TimelineKind
	Reason   string
	Occurred time.Time
}

// OrderPlacedEntry — запись об оформлении заказа на сумму total.
func OrderPlacedEntry(total decimal.Decimal, at time.Time) TimelineEvent {
	return TimelineEvent{Type: TimelineOrderPlaced, Reason: "total " + total.String(), Occurred: at}
}

// PaymentEntry — запись о принятом платеже: статус и способ оплаты.
func PaymentEntry(p Payment, at time.Time) TimelineEvent {
	return TimelineEvent{
		Type:     TimelinePaymentRecorded,
		Reason:   fmt.Sprintf("%s via %s", p.Status, p.Method),
		Occurred: at,
	}
}

// StatusChangeEntry — запись о переходе заказа между статусами.
func StatusChangeEntry(from, to OrderStatus, at time.Time) TimelineEvent {
	return TimelineEvent{Type: TimelineOrderStatusChanged, Reason: string(from) + " -> " + string(to), Occurred: at}
}

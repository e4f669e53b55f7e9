package domain

import "time"

// IdempotencyStatus — состояние повторяемого запроса (оформление заказа по Idempotency-Key).
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — ответ 2xx/3xx сохранён и отдаётся при повторе.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — сохранён ответ с ошибкой; повтор вернёт ту же ошибку.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord — исход запроса, привязанный к ключу клиента и отпечатку тела.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Settled сообщает, что обработка завершена (успехом или ошибкой).
func (s IdempotencyStatus) Settled() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// Expired сообщает, что ключ можно занять заново.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Replayable сообщает, что у записи есть сохранённый ответ для повтора.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status.Settled() && r.HTTPStatus != 0
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — некорректный или отсутствующий ввод; клиент может исправить запрос и повторить.
	ErrValidation = errors.New("validation failed")
	// ErrEmptyCart — корзина клиента отсутствует или не содержит позиций.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidAddress — адрес не найден или принадлежит другому клиенту.
	// Эти случаи намеренно не различаются.
	ErrInvalidAddress = errors.New("invalid shipping address")
	// ErrProductUnavailable — предварительная проверка остатка не прошла.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrStockConflict — условное списание остатка не удалось внутри транзакции (проигранная гонка).
	ErrStockConflict = errors.New("stock conflict")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAmountMismatch — сумма платежа не совпадает с суммой заказа.
	ErrAmountMismatch = errors.New("payment amount does not match order total")
	// ErrPaymentAlreadyRecorded — по заказу уже есть действующий платёж.
	ErrPaymentAlreadyRecorded = errors.New("payment already recorded for order")
	// ErrInvalidStatusTransition — недопустимый переход статуса заказа.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")

	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrAddressNotFound возвращается, если адрес не найден.
	ErrAddressNotFound = errors.New("address not found")
	// ErrCartNotFound возвращается, если у клиента ещё нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartLineNotFound возвращается, если в корзине нет позиции с таким товаром.
	ErrCartLineNotFound = errors.New("cart line not found")

	// ErrCustomerRequired — отсутствует идентификатор клиента.
	ErrCustomerRequired = errors.New("customerId is required")
	// ErrAddressRequired — отсутствует идентификатор адреса.
	ErrAddressRequired = errors.New("addressId is required")
	// ErrOrderIDRequired — отсутствует идентификатор заказа.
	ErrOrderIDRequired = errors.New("orderId is required")
	// ErrLinesRequired — заказ должен содержать хотя бы одну позицию.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// ErrQuantityInvalid — количество вне допустимого диапазона.
	ErrQuantityInvalid = errors.New("quantity must be between 1 and 99")
	// ErrProductNameRequired — у товара нет названия.
	ErrProductNameRequired = errors.New("product name is required")
	// ErrStockNegative — остаток не может быть отрицательным.
	ErrStockNegative = errors.New("stock must be non-negative")
	// ErrProductSortInvalid — неизвестный порядок сортировки каталога.
	ErrProductSortInvalid = errors.New("unsupported product sort")
	// ErrPriceRangeInvalid — min_price больше max_price.
	ErrPriceRangeInvalid = errors.New("min_price must not exceed max_price")
	// ErrPriceNegative — цена не может быть отрицательной.
	ErrPriceNegative = errors.New("price must be non-negative")
	// ErrTotalMismatch — сумма заказа не совпадает с суммой позиций.
	ErrTotalMismatch = errors.New("order total does not match lines sum")
	// ErrLineTotalMismatch — итог позиции не равен цене, умноженной на количество.
	ErrLineTotalMismatch = errors.New("line total does not match unit price times quantity")
	// ErrPaymentMethodRequired — не указан способ оплаты.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// ErrPaymentStatusInvalid — неизвестный статус платежа.
	ErrPaymentStatusInvalid = errors.New("payment status is invalid")
	// ErrPaymentAmountNegative — отрицательная сумма платежа.
	ErrPaymentAmountNegative = errors.New("payment amount must be non-negative")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// ProductUnavailableError сообщает, какой товар не прошёл предварительную проверку остатка.
type ProductUnavailableError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *ProductUnavailableError) Error() string {
	if e.ProductName == "" {
		return fmt.Sprintf("product #%d is no longer sold: requested %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("product %q is unavailable: requested %d, in stock %d", e.ProductName, e.Requested, e.Available)
}

// Is позволяет сравнивать ошибку с ErrProductUnavailable через errors.Is.
func (e *ProductUnavailableError) Is(target error) bool {
	return target == ErrProductUnavailable
}

// StockConflictError сообщает о товаре, остаток которого изменился между проверкой и списанием.
type StockConflictError struct {
	ProductID   int64
	ProductName string
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock for product %q changed during checkout", e.ProductName)
}

// Is позволяет сравнивать ошибку с ErrStockConflict через errors.Is.
func (e *StockConflictError) Is(target error) bool {
	return target == ErrStockConflict
}

// IsBusinessError проверяет, относится ли ошибка к ожидаемым бизнес-исходам,
// а не к сбоям хранилища.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrValidation,
		ErrEmptyCart,
		ErrInvalidAddress,
		ErrProductUnavailable,
		ErrStockConflict,
		ErrOrderNotFound,
		ErrAmountMismatch,
		ErrPaymentAlreadyRecorded,
		ErrInvalidStatusTransition,
		ErrProductNotFound,
		ErrCartLineNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// Validation оборачивает причину в ErrValidation, сохраняя исходное сообщение.
func Validation(cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, cause)
}

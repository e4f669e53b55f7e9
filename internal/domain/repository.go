package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProductRepository — складской учёт и каталог товаров.
type ProductRepository interface {
	// FindByID возвращает товар или ErrProductNotFound.
	FindByID(ctx context.Context, id int64) (Product, error)
	// DecrementStock условно списывает amount единиц: stock = stock - amount WHERE stock >= amount.
	// Возвращает false, если остатка не хватило в момент записи.
	DecrementStock(ctx context.Context, id int64, amount int) (bool, error)
	// List возвращает страницу каталога и общее количество подходящих товаров.
	List(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	// Create добавляет товар (наполнение каталога и тесты).
	Create(ctx context.Context, product Product) (Product, error)
	// SetPrice меняет текущую цену товара; уже оформленные заказы не затрагиваются.
	SetPrice(ctx context.Context, id int64, price decimal.Decimal) error
}

// CartRepository описывает хранилище корзин.
type CartRepository interface {
	// GetOrCreate возвращает корзину клиента, создавая пустую при первом обращении.
	GetOrCreate(ctx context.Context, customerID int64) (Cart, error)
	// Find возвращает корзину клиента или ErrCartNotFound.
	Find(ctx context.Context, customerID int64) (Cart, error)
	// Lock блокирует корзину до конца текущей транзакции.
	Lock(ctx context.Context, cartID string) error
	// ListLines возвращает позиции с текущими названием, ценой и остатком товара.
	ListLines(ctx context.Context, cartID string) ([]CartLine, error)
	// AddItem добавляет товар; для уже лежащего в корзине товара увеличивает количество.
	AddItem(ctx context.Context, cartID string, productID int64, qty int) error
	// SetQuantity задаёт количество существующей позиции. false — позиции нет.
	SetQuantity(ctx context.Context, cartID string, productID int64, qty int) (bool, error)
	// RemoveItem удаляет позицию. false — позиции не было.
	RemoveItem(ctx context.Context, cartID string, productID int64) (bool, error)
	// Clear удаляет все позиции корзины. false — корзина уже была пустой, это не ошибка.
	Clear(ctx context.Context, cartID string) (bool, error)
}

// AddressRepository — адресная книга клиентов.
type AddressRepository interface {
	// FindByID возвращает адрес или ErrAddressNotFound.
	FindByID(ctx context.Context, id int64) (Address, error)
	// Create сохраняет адрес (наполнение и тесты).
	Create(ctx context.Context, address Address) (Address, error)
}

// OrderRepository — журнал заказов.
type OrderRepository interface {
	// Create создаёт заказ в статусе pending и возвращает его идентификатор.
	Create(ctx context.Context, customerID, addressID int64, totalPrice decimal.Decimal) (string, error)
	// AddLines сохраняет позиции заказа; в рамках транзакции либо все, либо ни одной.
	AddLines(ctx context.Context, orderID string, lines []OrderLine) error
	// UpdateStatus меняет статус. false — заказа нет.
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus) (bool, error)
	// FindByID возвращает заказ с позициями или ErrOrderNotFound.
	FindByID(ctx context.Context, orderID string) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми; limit <= 0 — без ограничения.
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]Order, error)
}

// PaymentRepository хранит платежи по заказам.
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) (Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
}

// TimelineRepository — история заказа, только дописывание.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	// List возвращает историю в порядке возникновения.
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит исходы оформления заказа по Idempotency-Key.
type IdempotencyRepository interface {
	// CreateProcessing занимает ключ. Занятый живой ключ даёт ErrIdempotencyKeyAlreadyExists
	// (с текущей записью) или ErrIdempotencyHashMismatch, если тело запроса другое.
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	// Release освобождает ключ, который ещё в processing, чтобы запрос можно было повторить.
	// Ключ с сохранённым исходом не трогается: ErrIdempotencyKeyNotFound.
	Release(key string) error
	// DeleteExpired удаляет до limit записей с ttl <= before.
	DeleteExpired(before time.Time, limit int) (int, error)
}

// CartCache кеширует представление корзины для чтения.
// Оформление заказа всегда читает корзину из хранилища, минуя кеш.
type CartCache interface {
	Get(ctx context.Context, customerID int64) (CartView, error)
	Set(ctx context.Context, customerID int64, view CartView) error
	Delete(ctx context.Context, customerID int64) error
}

// Repositories — набор репозиториев, доступных как вне транзакции, так и внутри неё.
type Repositories interface {
	Products() ProductRepository
	Carts() CartRepository
	Addresses() AddressRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// Tx — явный дескриптор транзакции. Все репозитории, полученные из него,
// работают в одной транзакции.
type Tx interface {
	Repositories
}

// UnitOfWork выполняет fn в транзакции: commit при nil, rollback при ошибке или панике.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Storage объединяет доступ к репозиториям и транзакциям.
type Storage interface {
	Repositories
	UnitOfWork
}

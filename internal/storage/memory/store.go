package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

var errTxClosed = errors.New("memory: transaction already closed")

// Store — in-memory хранилище для локальной разработки и тестов.
// Все репозитории работают поверх общего состояния под одним мьютексом;
// транзакция держит мьютекс целиком и откатывается по журналу отмены.
type Store struct {
	view

	mu  sync.Mutex
	st  *state
	now func() time.Time
}

type state struct {
	products      map[int64]domain.Product
	nextProductID int64

	carts          map[string]domain.Cart
	cartByCustomer map[int64]string
	cartItems      map[string]map[int64]cartItem

	addresses     map[int64]domain.Address
	nextAddressID int64

	orders        map[string]domain.Order
	payments      map[string]domain.Payment
	orderPayments map[string][]string

	outbox    map[string]outboxRecord
	outboxSeq int64

	timeline map[string][]domain.TimelineEvent
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	s := &Store{
		st: &state{
			products:       make(map[int64]domain.Product),
			carts:          make(map[string]domain.Cart),
			cartByCustomer: make(map[int64]string),
			cartItems:      make(map[string]map[int64]cartItem),
			addresses:      make(map[int64]domain.Address),
			orders:         make(map[string]domain.Order),
			payments:       make(map[string]domain.Payment),
			orderPayments:  make(map[string][]string),
			outbox:         make(map[string]outboxRecord),
			timeline:       make(map[string][]domain.TimelineEvent),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	s.view = view{s: s}
	return s
}

// Do выполняет fn в транзакции. Вложенный вызов Do из fn приведёт к взаимоблокировке.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := &journal{}
	defer j.close()
	defer func() {
		if p := recover(); p != nil {
			j.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, view{s: s, j: j}); err != nil {
		j.rollback()
		return err
	}
	return nil
}

// exec выполняет операцию репозитория: внутри транзакции — в её журнале,
// иначе — атомарно под собственной блокировкой.
func (s *Store) exec(ctx context.Context, j *journal, fn func(st *state, j *journal) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j != nil {
		if j.closed {
			return errTxClosed
		}
		return fn(s.st, j)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	local := &journal{}
	if err := fn(s.st, local); err != nil {
		local.rollback()
		return err
	}
	return nil
}

// view привязывает репозитории к хранилищу и, опционально, к транзакции.
type view struct {
	s *Store
	j *journal
}

func (v view) Products() domain.ProductRepository { return &productRepository{v} }
func (v view) Carts() domain.CartRepository { return &cartRepository{v} }
func (v view) Addresses() domain.AddressRepository { return &addressRepository{v} }
func (v view) Orders() domain.OrderRepository { return &orderRepository{v} }
func (v view) Payments() domain.PaymentRepository { return &paymentRepository{v} }
func (v view) Outbox() domain.OutboxRepository { return &outboxRepository{v} }
func (v view) Timeline() domain.TimelineRepository { return &timelineRepository{v} }

// journal хранит операции отмены в порядке применения изменений.
type journal struct {
	undo   []func()
	closed bool
}

func (j *journal) record(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

func (j *journal) close() {
	j.closed = true
}

// remember запоминает текущее значение m[k] до его изменения.
func remember[K comparable, V any](j *journal, m map[K]V, k K) {
	prev, existed := m[k]
	j.record(func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

var (
	_ domain.Storage = (*Store)(nil)
	_ domain.Tx      = view{}
)

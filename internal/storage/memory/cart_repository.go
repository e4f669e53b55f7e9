package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

type cartItem struct {
	qty     int
	addedAt time.Time
}

type cartRepository struct {
	view
}

// GetOrCreate возвращает корзину клиента, создавая её при первом обращении.
func (r *cartRepository) GetOrCreate(ctx context.Context, customerID int64) (domain.Cart, error) {
	if customerID <= 0 {
		return domain.Cart{}, domain.Validation(domain.ErrCustomerRequired)
	}

	var cart domain.Cart
	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		if id, ok := st.cartByCustomer[customerID]; ok {
			cart = st.carts[id]
			return nil
		}

		now := r.s.now()
		cart = domain.Cart{ID: uuid.NewString(), CustomerID: customerID, CreatedAt: now, UpdatedAt: now}
		remember(j, st.carts, cart.ID)
		remember(j, st.cartByCustomer, customerID)
		st.carts[cart.ID] = cart
		st.cartByCustomer[customerID] = cart.ID
		return nil
	})
	return cart, err
}

func (r *cartRepository) Find(ctx context.Context, customerID int64) (domain.Cart, error) {
	var cart domain.Cart
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		id, ok := st.cartByCustomer[customerID]
		if !ok {
			return domain.ErrCartNotFound
		}
		cart = st.carts[id]
		return nil
	})
	return cart, err
}

// Lock только проверяет существование корзины: транзакция уже держит мьютекс хранилища.
func (r *cartRepository) Lock(ctx context.Context, cartID string) error {
	return r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		if _, ok := st.carts[cartID]; !ok {
			return domain.ErrCartNotFound
		}
		return nil
	})
}

// ListLines возвращает строки корзины. Строка пропавшего товара остаётся в списке
// с пустым названием и нулевым остатком, чтобы оформление заказа её отвергло.
func (r *cartRepository) ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		for productID, item := range st.cartItems[cartID] {
			p := st.products[productID]
			lines = append(lines, domain.CartLine{
				ProductID:   productID,
				Quantity:    item.qty,
				ProductName: p.Name,
				Price:       p.Price,
				Stock:       p.Stock,
				AddedAt:     item.addedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ProductID < lines[j].ProductID
	})
	return lines, nil
}

// AddItem добавляет товар или увеличивает количество уже лежащей позиции.
func (r *cartRepository) AddItem(ctx context.Context, cartID string, productID int64, qty int) error {
	if err := domain.ValidateQuantity(qty); err != nil {
		return err
	}
	return r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		if _, ok := st.carts[cartID]; !ok {
			return domain.ErrCartNotFound
		}
		if _, ok := st.products[productID]; !ok {
			return domain.ErrProductNotFound
		}

		items := r.items(st, j, cartID)
		item, exists := items[productID]
		if !exists {
			item.addedAt = r.s.now()
		}
		if err := domain.ValidateQuantity(item.qty + qty); err != nil {
			return err
		}
		remember(j, items, productID)
		item.qty += qty
		items[productID] = item
		r.touch(st, j, cartID)
		return nil
	})
}

func (r *cartRepository) SetQuantity(ctx context.Context, cartID string, productID int64, qty int) (bool, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return false, err
	}

	var updated bool
	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		items := st.cartItems[cartID]
		item, ok := items[productID]
		if !ok {
			return nil
		}
		remember(j, items, productID)
		item.qty = qty
		items[productID] = item
		r.touch(st, j, cartID)
		updated = true
		return nil
	})
	return updated, err
}

func (r *cartRepository) RemoveItem(ctx context.Context, cartID string, productID int64) (bool, error) {
	var removed bool
	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		items := st.cartItems[cartID]
		if _, ok := items[productID]; !ok {
			return nil
		}
		remember(j, items, productID)
		delete(items, productID)
		r.touch(st, j, cartID)
		removed = true
		return nil
	})
	return removed, err
}

// Clear удаляет все позиции; false означает, что корзина уже была пустой.
func (r *cartRepository) Clear(ctx context.Context, cartID string) (bool, error) {
	var cleared bool
	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		if len(st.cartItems[cartID]) == 0 {
			return nil
		}
		remember(j, st.cartItems, cartID)
		delete(st.cartItems, cartID)
		r.touch(st, j, cartID)
		cleared = true
		return nil
	})
	return cleared, err
}

func (r *cartRepository) items(st *state, j *journal, cartID string) map[int64]cartItem {
	items, ok := st.cartItems[cartID]
	if !ok {
		items = make(map[int64]cartItem)
		remember(j, st.cartItems, cartID)
		st.cartItems[cartID] = items
	}
	return items
}

func (r *cartRepository) touch(st *state, j *journal, cartID string) {
	cart, ok := st.carts[cartID]
	if !ok {
		return
	}
	remember(j, st.carts, cartID)
	cart.UpdatedAt = r.s.now()
	st.carts[cartID] = cart
}

var _ domain.CartRepository = (*cartRepository)(nil)

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

type cartRepository struct {
	q querier
}

// GetOrCreate создаёт корзину через ON CONFLICT, поэтому параллельные первые обращения
// одного клиента получают одну и ту же корзину.
func (r *cartRepository) GetOrCreate(ctx context.Context, customerID int64) (domain.Cart, error) {
	if customerID <= 0 {
		return domain.Cart{}, domain.Validation(domain.ErrCustomerRequired)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, customer_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (customer_id) DO NOTHING
	`, uuid.NewString(), customerID); err != nil {
		return domain.Cart{}, fmt.Errorf("insert cart: %w", err)
	}

	cart, err := r.find(ctx, customerID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("select created cart: %w", err)
	}
	return cart, nil
}

func (r *cartRepository) Find(ctx context.Context, customerID int64) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.find(ctx, customerID)
}

func (r *cartRepository) find(ctx context.Context, customerID int64) (domain.Cart, error) {
	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, customer_id, created_at, updated_at
		FROM carts
		WHERE customer_id = $1
	`, customerID).Scan(&cart.ID, &cart.CustomerID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}
	return cart, nil
}

// Lock берёт строчную блокировку корзины до конца транзакции.
// Вне транзакции блокировка снимается сразу.
func (r *cartRepository) Lock(ctx context.Context, cartID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCartNotFound
		}
		return fmt.Errorf("lock cart: %w", err)
	}
	return nil
}

func (r *cartRepository) ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT ci.product_id, ci.quantity, COALESCE(p.name, ''), COALESCE(p.price, 0), COALESCE(p.stock, 0), ci.added_at
		FROM cart_items ci
		LEFT JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.added_at ASC, ci.product_id ASC
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(
			&line.ProductID, &line.Quantity, &line.ProductName, &line.Price, &line.Stock, &line.AddedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

// AddItem добавляет товар; существующая позиция увеличивается, CHECK ограничивает итог.
func (r *cartRepository) AddItem(ctx context.Context, cartID string, productID int64, qty int) error {
	if err := domain.ValidateQuantity(qty); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, cartID, productID, qty)
	if err != nil {
		if isCheckViolation(err) {
			return domain.Validation(domain.ErrQuantityInvalid)
		}
		if constraint, ok := foreignKeyViolation(err); ok {
			if constraint == "cart_items_product_id_fkey" {
				return domain.ErrProductNotFound
			}
			return domain.ErrCartNotFound
		}
		return fmt.Errorf("add cart item: %w", err)
	}
	return r.touch(ctx, cartID)
}

func (r *cartRepository) SetQuantity(ctx context.Context, cartID string, productID int64, qty int) (bool, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID, qty)
	if err != nil {
		return false, fmt.Errorf("set cart item quantity: %w", err)
	}
	return r.changed(ctx, res, cartID)
}

func (r *cartRepository) RemoveItem(ctx context.Context, cartID string, productID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	if err != nil {
		return false, fmt.Errorf("remove cart item: %w", err)
	}
	return r.changed(ctx, res, cartID)
}

// Clear удаляет все позиции; false означает, что корзина уже была пустой.
func (r *cartRepository) Clear(ctx context.Context, cartID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return false, fmt.Errorf("clear cart: %w", err)
	}
	return r.changed(ctx, res, cartID)
}

func (r *cartRepository) changed(ctx context.Context, res sql.Result, cartID string) (bool, error) {
	affected, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	if err := r.touch(ctx, cartID); err != nil {
		return false, err
	}
	return true, nil
}

func (r *cartRepository) touch(ctx context.Context, cartID string) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)

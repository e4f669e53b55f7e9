package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

type orderRepository struct {
	q querier
}

func (r *orderRepository) Create(ctx context.Context, customerID, addressID int64, totalPrice decimal.Decimal) (string, error) {
	switch {
	case customerID <= 0:
		return "", domain.Validation(domain.ErrCustomerRequired)
	case addressID <= 0:
		return "", domain.Validation(domain.ErrAddressRequired)
	case totalPrice.IsNegative():
		return "", domain.Validation(domain.ErrPriceNegative)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id := uuid.NewString()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, address_id, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, id, customerID, addressID, totalPrice, string(domain.OrderStatusPending))
	if err != nil {
		if _, ok := foreignKeyViolation(err); ok {
			return "", domain.ErrAddressNotFound
		}
		return "", fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

// AddLines сохраняет позиции в порядке передачи; без внешней транзакции — в собственной.
func (r *orderRepository) AddLines(ctx context.Context, orderID string, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return domain.Validation(domain.ErrLinesRequired)
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.Validation(domain.ErrQuantityInvalid)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return atomically(ctx, r.q, func(q querier) error {
		var position int
		if err := q.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(position), 0) FROM order_lines WHERE order_id = $1
		`, orderID).Scan(&position); err != nil {
			return fmt.Errorf("select order line position: %w", err)
		}

		for _, line := range lines {
			position++
			if line.ID == "" {
				line.ID = uuid.NewString()
			}
			if _, err := q.ExecContext(ctx, `
				INSERT INTO order_lines (
					id, order_id, position, product_id, product_name, quantity, unit_price, line_total
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`,
				line.ID, orderID, position, line.ProductID, line.ProductName,
				line.Quantity, line.UnitPrice, line.LineTotal,
			); err != nil {
				if constraint, ok := foreignKeyViolation(err); ok {
					if constraint == "order_lines_product_id_fkey" {
						return domain.ErrProductNotFound
					}
					return domain.ErrOrderNotFound
				}
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, orderID, string(status))
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	affected, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `
		SELECT id, customer_id, address_id, total_price, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if order.Lines, err = r.loadLines(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListByCustomer возвращает заказы клиента, новые первыми; limit <= 0 — без ограничения.
func (r *orderRepository) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, customer_id, address_id, total_price, status, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	// Внутри транзакции соединение одно: курсор нужно закрыть до загрузки позиций.
	rows.Close()

	for i := range orders {
		if orders[i].Lines, err = r.loadLines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, line_total
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &order.AddressID, &order.TotalPrice, &status,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const productSelect = `
	SELECT p.id, p.name, p.description, p.price, p.stock, p.created_at, p.updated_at,
	       COALESCE(string_agg(c.slug, ',' ORDER BY c.slug), '')
	FROM products p
	LEFT JOIN product_categories pc ON pc.product_id = p.id
	LEFT JOIN categories c ON c.id = pc.category_id
`

var productOrderBy = map[domain.ProductSort]string{
	domain.ProductSortNewest:    "p.created_at DESC, p.id DESC",
	domain.ProductSortName:      "p.name ASC, p.id ASC",
	domain.ProductSortPriceAsc:  "p.price ASC, p.id ASC",
	domain.ProductSortPriceDesc: "p.price DESC, p.id ASC",
}

type productRepository struct {
	q querier
}

func (r *productRepository) FindByID(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.q.QueryRowContext(ctx, productSelect+` WHERE p.id = $1 GROUP BY p.id`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// DecrementStock выполняет условное списание одним UPDATE ... WHERE stock >= amount.
func (r *productRepository) DecrementStock(ctx context.Context, id int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, domain.Validation(domain.ErrQuantityInvalid)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND stock >= $2
	`, id, amount)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	affected, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return false, domain.ErrProductNotFound
	}
	return false, nil
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Category != "" {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM product_categories fpc
			JOIN categories fc ON fc.id = fpc.category_id
			WHERE fpc.product_id = p.id AND lower(fc.slug) = lower(`+arg(filter.Category)+`))`)
	}
	if filter.Query != "" {
		conds = append(conds, `p.name ILIKE '%' || `+arg(escapeLike(filter.Query))+` || '%'`)
	}
	if filter.MinPrice != nil {
		conds = append(conds, "p.price >= "+arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		conds = append(conds, "p.price <= "+arg(*filter.MaxPrice))
	}
	if filter.InStockOnly {
		conds = append(conds, "p.stock > 0")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := productSelect + where + " GROUP BY p.id ORDER BY " + productOrderBy[filter.Sort] +
		" LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, filter.Limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, total, nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, domain.Validation(errors.Join(errs...))
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := atomically(ctx, r.q, func(q querier) error {
		if err := q.QueryRowContext(ctx, `
			INSERT INTO products (name, description, price, stock)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at
		`, product.Name, product.Description, product.Price, product.Stock).Scan(
			&product.ID, &product.CreatedAt, &product.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert product: %w", err)
		}

		for _, slug := range product.Categories {
			var categoryID int64
			if err := q.QueryRowContext(ctx, `
				INSERT INTO categories (slug) VALUES ($1)
				ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
				RETURNING id
			`, slug).Scan(&categoryID); err != nil {
				return fmt.Errorf("upsert category %q: %w", slug, err)
			}
			if _, err := q.ExecContext(ctx, `
				INSERT INTO product_categories (product_id, category_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, product.ID, categoryID); err != nil {
				return fmt.Errorf("link product category: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	product.Categories = append([]string(nil), product.Categories...)
	return product, nil
}

func (r *productRepository) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	if price.IsNegative() {
		return domain.Validation(domain.ErrPriceNegative)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `UPDATE products SET price = $2, updated_at = NOW() WHERE id = $1`, id, price)
	if err != nil {
		return fmt.Errorf("update product price: %w", err)
	}
	affected, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product    domain.Product
		categories string
	)
	if err := row.Scan(
		&product.ID, &product.Name, &product.Description, &product.Price, &product.Stock,
		&product.CreatedAt, &product.UpdatedAt, &categories,
	); err != nil {
		return domain.Product{}, err
	}
	product.Categories = splitCategories(categories)
	return product, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)

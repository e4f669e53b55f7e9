package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

type addressRepository struct {
	q querier
}

func (r *addressRepository) FindByID(ctx context.Context, id int64) (domain.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var a domain.Address
	err := r.q.QueryRowContext(ctx, `
		SELECT id, customer_id, phone, street, city, postal_code, created_at
		FROM addresses
		WHERE id = $1
	`, id).Scan(&a.ID, &a.CustomerID, &a.Phone, &a.Street, &a.City, &a.PostalCode, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Address{}, domain.ErrAddressNotFound
		}
		return domain.Address{}, fmt.Errorf("select address: %w", err)
	}
	return a, nil
}

func (r *addressRepository) Create(ctx context.Context, a domain.Address) (domain.Address, error) {
	if a.CustomerID <= 0 {
		return domain.Address{}, domain.Validation(domain.ErrCustomerRequired)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.q.QueryRowContext(ctx, `
		INSERT INTO addresses (customer_id, phone, street, city, postal_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, a.CustomerID, a.Phone, a.Street, a.City, a.PostalCode).Scan(&a.ID, &a.CreatedAt); err != nil {
		return domain.Address{}, fmt.Errorf("insert address: %w", err)
	}
	return a, nil
}

var _ domain.AddressRepository = (*addressRepository)(nil)

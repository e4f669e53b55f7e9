package memory

import (
	"context"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

type addressRepository struct {
	view
}

func (r *addressRepository) FindByID(ctx context.Context, id int64) (domain.Address, error) {
	var address domain.Address
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		a, ok := st.addresses[id]
		if !ok {
			return domain.ErrAddressNotFound
		}
		address = a
		return nil
	})
	return address, err
}

func (r *addressRepository) Create(ctx context.Context, address domain.Address) (domain.Address, error) {
	if address.CustomerID <= 0 {
		return domain.Address{}, domain.Validation(domain.ErrCustomerRequired)
	}

	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		prevID := st.nextAddressID
		j.record(func() { st.nextAddressID = prevID })
		st.nextAddressID++

		address.ID = st.nextAddressID
		address.CreatedAt = r.s.now()
		remember(j, st.addresses, address.ID)
		st.addresses[address.ID] = address
		return nil
	})
	if err != nil {
		return domain.Address{}, err
	}
	return address, nil
}

var _ domain.AddressRepository = (*addressRepository)(nil)

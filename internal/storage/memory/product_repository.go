package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

type productRepository struct {
	view
}

func (r *productRepository) FindByID(ctx context.Context, id int64) (domain.Product, error) {
	var product domain.Product
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = cloneProduct(p)
		return nil
	})
	return product, err
}

// DecrementStock списывает остаток только если его хватает на момент записи.
func (r *productRepository) DecrementStock(ctx context.Context, id int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, domain.Validation(domain.ErrQuantityInvalid)
	}

	var applied bool
	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		if p.Stock < amount {
			return nil
		}
		remember(j, st.products, id)
		p.Stock -= amount
		p.UpdatedAt = r.s.now()
		st.products[id] = p
		applied = true
		return nil
	})
	return applied, err
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, 0, err
	}

	var (
		page  []domain.Product
		total int
	)
	err = r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		matched := make([]domain.Product, 0, len(st.products))
		for _, p := range st.products {
			if filter.Matches(p) {
				matched = append(matched, p)
			}
		}
		sortProducts(matched, filter.Sort)

		total = len(matched)
		page = make([]domain.Product, 0, filter.Limit)
		for i := filter.Offset; i < total && len(page) < filter.Limit; i++ {
			page = append(page, cloneProduct(matched[i]))
		}
		return nil
	})
	return page, total, err
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, domain.Validation(errors.Join(errs...))
	}

	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		prevID := st.nextProductID
		j.record(func() { st.nextProductID = prevID })
		st.nextProductID++

		now := r.s.now()
		product.ID = st.nextProductID
		product.CreatedAt = now
		product.UpdatedAt = now

		remember(j, st.products, product.ID)
		st.products[product.ID] = cloneProduct(product)
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (r *productRepository) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	if price.IsNegative() {
		return domain.Validation(domain.ErrPriceNegative)
	}
	return r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		remember(j, st.products, id)
		p.Price = price
		p.UpdatedAt = r.s.now()
		st.products[id] = p
		return nil
	})
}

func sortProducts(items []domain.Product, order domain.ProductSort) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch order {
		case domain.ProductSortName:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		case domain.ProductSortPriceAsc:
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
		case domain.ProductSortPriceDesc:
			if !a.Price.Equal(b.Price) {
				return a.Price.GreaterThan(b.Price)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
}

func cloneProduct(p domain.Product) domain.Product {
	p.Categories = append([]string(nil), p.Categories...)
	return p
}

var _ domain.ProductRepository = (*productRepository)(nil)

// Package catalog отдаёт витрину товаров.
package catalog

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// Page — страница каталога.
type Page struct {
	Items  []domain.Product
	Total  int
	Limit  int
	Offset int
}

// Service читает каталог товаров.
type Service struct {
	products domain.ProductRepository
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository) *Service {
	return &Service{products: products}
}

// List возвращает страницу товаров по фильтру.
func (s *Service) List(ctx context.Context, filter domain.ProductFilter) (Page, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return Page{}, err
	}

	items, total, err := s.products.List(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("list products: %w", err)
	}
	if items == nil {
		items = []domain.Product{}
	}
	return Page{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Get возвращает товар или domain.ErrProductNotFound.
func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return s.products.FindByID(ctx, id)
}

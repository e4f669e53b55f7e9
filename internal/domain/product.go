package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product — позиция каталога с текущей ценой и остатком на складе.
type Product struct {
	ID          int64
	Name        string
	Description string
	// Price — текущая цена за единицу; в заказ копируется снимком.
	Price decimal.Decimal
	// Stock — остаток; меняется только условным списанием при оформлении заказа.
	Stock      int
	Categories []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет базовые инварианты товара.
func (p *Product) Validate() []error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrPriceNegative)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrStockNegative)
	}
	return errs
}

// InStock сообщает, хватает ли остатка на qty единиц.
func (p *Product) InStock(qty int) bool {
	return qty > 0 && p.Stock >= qty
}

// HasCategory проверяет принадлежность товара категории (без учёта регистра).
func (p *Product) HasCategory(slug string) bool {
	for _, c := range p.Categories {
		if strings.EqualFold(c, slug) {
			return true
		}
	}
	return false
}

// ProductSort задаёт порядок выдачи каталога.
type ProductSort string

const (
	ProductSortNewest    ProductSort = "newest"
	ProductSortName      ProductSort = "name"
	ProductSortPriceAsc  ProductSort = "price_asc"
	ProductSortPriceDesc ProductSort = "price_desc"
)

// Valid проверяет, что порядок сортировки поддерживается.
func (s ProductSort) Valid() bool {
	switch s {
	case ProductSortNewest, ProductSortName, ProductSortPriceAsc, ProductSortPriceDesc:
		return true
	default:
		return false
	}
}

const (
	DefaultProductPageSize = 20
	MaxProductPageSize     = 100
)

// ProductFilter описывает фильтры просмотра каталога.
type ProductFilter struct {
	Category    string
	Query       string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	InStockOnly bool
	Sort        ProductSort
	Limit       int
	Offset      int
}

// Normalize приводит фильтр к допустимым значениям и проверяет диапазон цен.
func (f ProductFilter) Normalize() (ProductFilter, error) {
	f.Category = strings.TrimSpace(f.Category)
	f.Query = strings.TrimSpace(f.Query)
	if f.Sort == "" {
		f.Sort = ProductSortNewest
	}
	if !f.Sort.Valid() {
		return f, Validation(ErrProductSortInvalid)
	}
	if f.Limit <= 0 {
		f.Limit = DefaultProductPageSize
	}
	if f.Limit > MaxProductPageSize {
		f.Limit = MaxProductPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		return f, Validation(ErrPriceNegative)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return f, Validation(ErrPriceRangeInvalid)
	}
	return f, nil
}

// Matches проверяет товар по фильтру (используется in-memory хранилищем).
func (f ProductFilter) Matches(p Product) bool {
	if f.Category != "" && !p.HasCategory(f.Category) {
		return false
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Query)) {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.InStockOnly && p.Stock <= 0 {
		return false
	}
	return true
}

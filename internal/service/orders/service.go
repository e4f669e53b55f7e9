// Package orders отдаёт клиенту историю и детали заказов.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Service читает заказы клиента. Чужой заказ неотличим от отсутствующего.
type Service struct {
	repos domain.Repositories
}

// NewService создаёт сервис чтения заказов.
func NewService(repos domain.Repositories) *Service {
	return &Service{repos: repos}
}

// Details возвращает заказ с адресом доставки, платежами и историей статусов.
func (s *Service) Details(ctx context.Context, customerID int64, orderID string) (domain.OrderDetails, error) {
	if orderID == "" {
		return domain.OrderDetails{}, domain.ErrOrderNotFound
	}

	order, err := s.repos.Orders().FindByID(ctx, orderID)
	if err != nil {
		return domain.OrderDetails{}, err
	}
	if order.CustomerID != customerID {
		return domain.OrderDetails{}, domain.ErrOrderNotFound
	}

	details := domain.OrderDetails{Order: order}

	// Адрес подтягивается при чтении; удалённый адрес не мешает показать заказ.
	address, err := s.repos.Addresses().FindByID(ctx, order.AddressID)
	switch {
	case err == nil:
		details.Address = &address
	case !errors.Is(err, domain.ErrAddressNotFound):
		return domain.OrderDetails{}, fmt.Errorf("load address: %w", err)
	}

	details.Payments, err = s.repos.Payments().ListByOrder(ctx, order.ID)
	if err != nil {
		return domain.OrderDetails{}, fmt.Errorf("list payments: %w", err)
	}

	details.Timeline, err = s.repos.Timeline().List(ctx, order.ID)
	if err != nil {
		return domain.OrderDetails{}, fmt.Errorf("list timeline: %w", err)
	}

	return details, nil
}

// List возвращает последние заказы клиента, новые первыми.
func (s *Service) List(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	if customerID <= 0 {
		return nil, domain.Validation(domain.ErrCustomerRequired)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	result, err := s.repos.Orders().ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if result == nil {
		result = []domain.Order{}
	}
	return result, nil
}

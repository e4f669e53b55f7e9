package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/stayawake/internal/cache"
	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/memory"
)

const customerID int64 = 7

type CartSuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.Store
	redis *miniredis.Miniredis
	svc   *Service

	beans   domain.Product
	grinder domain.Product
}

func TestCartSuite(t *testing.T) {
	suite.Run(t, new(CartSuite))
}

func (s *CartSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.redis = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{Addr: s.redis.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.svc = NewService(s.store, cache.NewRedisCache(client, time.Minute), nil)

	var err error
	s.beans, err = s.store.Products().Create(s.ctx, domain.Product{Name: "Arabica Beans", Price: decimal.NewFromInt(150000), Stock: 5})
	s.Require().NoError(err)
	s.grinder, err = s.store.Products().Create(s.ctx, domain.Product{Name: "Hand Grinder", Price: decimal.NewFromInt(650000), Stock: 0})
	s.Require().NoError(err)
}

func (s *CartSuite) TestViewOfMissingCartIsEmpty() {
	view, err := s.svc.View(s.ctx, customerID)
	s.Require().NoError(err)
	s.Empty(view.Lines)
	s.True(view.Total.IsZero())
	s.Equal(customerID, view.Cart.CustomerID)

	_, err = s.store.Carts().Find(s.ctx, customerID)
	s.ErrorIs(err, domain.ErrCartNotFound, "reading must not create a cart")
}

func (s *CartSuite) TestAddItemMergesQuantity() {
	_, err := s.svc.AddItem(s.ctx, customerID, s.beans.ID, 2)
	s.Require().NoError(err)

	view, err := s.svc.AddItem(s.ctx, customerID, s.beans.ID, 1)
	s.Require().NoError(err)
	s.Require().Len(view.Lines, 1)
	s.Equal(3, view.Lines[0].Quantity)
	s.True(view.Total.Equal(decimal.NewFromInt(450000)))
}

func (s *CartSuite) TestAddItemLimitedByStock() {
	_, err := s.svc.AddItem(s.ctx, customerID, s.beans.ID, 4)
	s.Require().NoError(err)

	_, err = s.svc.AddItem(s.ctx, customerID, s.beans.ID, 2)
	s.Require().ErrorIs(err, domain.ErrProductUnavailable)

	_, err = s.svc.AddItem(s.ctx, customerID, s.grinder.ID, 1)
	s.Require().ErrorIs(err, domain.ErrProductUnavailable)

	view, err := s.svc.View(s.ctx, customerID)
	s.Require().NoError(err)
	s.Require().Len(view.Lines, 1)
	s.Equal(4, view.Lines[0].Quantity)
}

func (s *CartSuite) TestAddItemValidation() {
	_, err := s.svc.AddItem(s.ctx, customerID, s.beans.ID, 0)
	s.ErrorIs(err, domain.ErrValidation)

	_, err = s.svc.AddItem(s.ctx, customerID, s.beans.ID, domain.MaxCartLineQuantity+1)
	s.ErrorIs(err, domain.ErrQuantityInvalid)

	_, err = s.svc.AddItem(s.ctx, customerID, 9999, 1)
	s.ErrorIs(err, domain.ErrProductNotFound)

	_, err = s.svc.AddItem(s.ctx, 0, s.beans.ID, 1)
	s.ErrorIs(err, domain.ErrCustomerRequired)
}

func (s *CartSuite) TestSetQuantityAndRemove() {
	_, err := s.svc.AddItem(s.ctx, customerID, s.beans.ID, 1)
	s.Require().NoError(err)

	view, err := s.svc.SetQuantity(s.ctx, customerID, s.beans.ID, 5)
	s.Require().NoError(err)
	s.Equal(5, view.Lines[0].Quantity)

	_, err = s.svc.SetQuantity(s.ctx, customerID, s.beans.ID, 6)
	s.ErrorIs(err, domain.ErrProductUnavailable)

	_, err = s.svc.SetQuantity(s.ctx, customerID, s.grinder.ID, 1)
	s.ErrorIs(err, domain.ErrProductUnavailable)

	view, err = s.svc.RemoveItem(s.ctx, customerID, s.beans.ID)
	s.Require().NoError(err)
	s.Empty(view.Lines)

	_, err = s.svc.RemoveItem(s.ctx, customerID, s.beans.ID)
	s.ErrorIs(err, domain.ErrCartLineNotFound)
}

func (s *CartSuite) TestMutationsOnMissingCart() {
	_, err := s.svc.SetQuantity(s.ctx, customerID, s.beans.ID, 1)
	s.ErrorIs(err, domain.ErrCartLineNotFound)

	_, err = s.svc.RemoveItem(s.ctx, customerID, s.beans.ID)
	s.ErrorIs(err, domain.ErrCartLineNotFound)
}

func (s *CartSuite) TestViewIsCachedAndInvalidatedOnChange() {
	_, err := s.svc.AddItem(s.ctx, customerID, s.beans.ID, 1)
	s.Require().NoError(err)
	s.True(s.redis.Exists("cart:7"))

	// Изменение в обход сервиса не видно, пока запись в кеше жива.
	cart, err := s.store.Carts().Find(s.ctx, customerID)
	s.Require().NoError(err)
	_, err = s.store.Carts().Clear(s.ctx, cart.ID)
	s.Require().NoError(err)

	view, err := s.svc.View(s.ctx, customerID)
	s.Require().NoError(err)
	s.Len(view.Lines, 1)

	s.redis.FastForward(time.Hour)

	view, err = s.svc.View(s.ctx, customerID)
	s.Require().NoError(err)
	s.Empty(view.Lines)
}

func (s *CartSuite) TestRedisOutageFallsBackToStore() {
	_, err := s.svc.AddItem(s.ctx, customerID, s.beans.ID, 2)
	s.Require().NoError(err)

	s.redis.Close()

	view, err := s.svc.View(s.ctx, customerID)
	s.Require().NoError(err)
	s.Require().Len(view.Lines, 1)
	s.Equal(2, view.Lines[0].Quantity)
}

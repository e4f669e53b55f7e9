package orders

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/service/checkout"
	"github.com/vladislavdragonenkov/stayawake/internal/service/payment"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/memory"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/seed"
)

func placeDemoOrder(t *testing.T, store *memory.Store, demo seed.Demo, qty int) domain.PlacedOrder {
	t.Helper()
	ctx := context.Background()

	cart, err := store.Carts().GetOrCreate(ctx, seed.DemoCustomerID)
	require.NoError(t, err)
	require.NoError(t, store.Carts().AddItem(ctx, cart.ID, demo.Products[0].ID, qty))

	placed, err := checkout.NewService(store).PlaceOrder(ctx, seed.DemoCustomerID, demo.Addresses[0].ID)
	require.NoError(t, err)
	return placed
}

func TestDetails_JoinsAddressPaymentsAndTimeline(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	demo, err := seed.Run(ctx, store)
	require.NoError(t, err)

	placed := placeDemoOrder(t, store, demo, 2)
	_, err = payment.NewService(store, nil, nil).RecordPayment(ctx, payment.RecordPaymentInput{
		OrderID:    placed.OrderID,
		Method:     "card",
		Status:     domain.PaymentStatusCompleted,
		AmountPaid: decimal.NewFromInt(300000),
	})
	require.NoError(t, err)

	details, err := NewService(store).Details(ctx, seed.DemoCustomerID, placed.OrderID)
	require.NoError(t, err)

	require.Equal(t, domain.OrderStatusPaid, details.Order.Status)
	require.Len(t, details.Order.Lines, 1)
	require.NotNil(t, details.Address)
	require.Equal(t, "Bandung", details.Address.City)
	require.Len(t, details.Payments, 1)

	types := make([]domain.TimelineKind, 0, len(details.Timeline))
	for _, e := range details.Timeline {
		types = append(types, e.Type)
	}
	require.Equal(t, []domain.TimelineKind{
		domain.TimelineOrderPlaced,
		domain.TimelinePaymentRecorded,
		domain.TimelineOrderStatusChanged,
	}, types)
}

func TestDetails_ForeignOrderIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	demo, err := seed.Run(ctx, store)
	require.NoError(t, err)

	placed := placeDemoOrder(t, store, demo, 1)
	svc := NewService(store)

	_, err = svc.Details(ctx, seed.DemoCustomerID+1, placed.OrderID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = svc.Details(ctx, seed.DemoCustomerID, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = svc.Details(ctx, seed.DemoCustomerID, "")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestList_NewestFirstAndScopedToCustomer(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	demo, err := seed.Run(ctx, store)
	require.NoError(t, err)

	first := placeDemoOrder(t, store, demo, 1)
	second := placeDemoOrder(t, store, demo, 3)
	svc := NewService(store)

	list, err := svc.List(ctx, seed.DemoCustomerID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.ElementsMatch(t, []string{first.OrderID, second.OrderID}, []string{list[0].ID, list[1].ID})
	require.False(t, list[0].CreatedAt.Before(list[1].CreatedAt))

	limited, err := svc.List(ctx, seed.DemoCustomerID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	other, err := svc.List(ctx, seed.DemoCustomerID+1, 10)
	require.NoError(t, err)
	require.Empty(t, other)

	_, err = svc.List(ctx, 0, 10)
	require.ErrorIs(t, err, domain.ErrValidation)
}

package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

func TestListLines_KeepsLineOfRemovedProduct(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	kettle, err := store.Products().Create(ctx, domain.Product{Name: "Gooseneck Kettle", Price: decimal.NewFromInt(420000), Stock: 3})
	require.NoError(t, err)
	beans, err := store.Products().Create(ctx, domain.Product{Name: "Arabica Beans", Price: decimal.NewFromInt(150000), Stock: 50})
	require.NoError(t, err)

	cart, err := store.Carts().GetOrCreate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.Carts().AddItem(ctx, cart.ID, kettle.ID, 1))
	require.NoError(t, store.Carts().AddItem(ctx, cart.ID, beans.ID, 2))

	store.mu.Lock()
	delete(store.st.products, kettle.ID)
	store.mu.Unlock()

	lines, err := store.Carts().ListLines(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	byID := map[int64]domain.CartLine{}
	for _, l := range lines {
		byID[l.ProductID] = l
	}
	require.Equal(t, 1, byID[kettle.ID].Quantity)
	require.Empty(t, byID[kettle.ID].ProductName)
	require.Zero(t, byID[kettle.ID].Stock)
	require.Equal(t, "Arabica Beans", byID[beans.ID].ProductName)
}

package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestPgErrorClassification(t *testing.T) {
	wrap := func(code, constraint string) error {
		return fmt.Errorf("place order: %w", &pgconn.PgError{Code: code, ConstraintName: constraint})
	}

	require.True(t, isUniqueViolation(wrap(pgUniqueViolation, "ux_payments_settled_order")))
	require.False(t, isUniqueViolation(wrap("40P01", "")))
	require.True(t, isCheckViolation(wrap(pgCheckViolation, "products_stock_non_negative")))

	constraint, ok := foreignKeyViolation(wrap(pgForeignKeyViolation, "orders_address_fk"))
	require.True(t, ok)
	require.Equal(t, "orders_address_fk", constraint)
	_, ok = foreignKeyViolation(errors.New("plain"))
	require.False(t, ok)
}

func TestEscapeLikeAndCategories(t *testing.T) {
	require.Equal(t, `100\% arabica\_v60\\`, escapeLike(`100% arabica_v60\`))
	require.Equal(t, []string{}, splitCategories(""))
	require.Equal(t, []string{"beans", "equipment"}, splitCategories("beans,equipment"))
	require.False(t, nullTime(time.Time{}).Valid)
}

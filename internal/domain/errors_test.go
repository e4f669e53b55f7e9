package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	unavailable := error(&ProductUnavailableError{ProductID: 7, ProductName: "Arabica Beans", Requested: 3, Available: 1})
	conflict := error(&StockConflictError{ProductID: 7, ProductName: "Arabica Beans"})

	if !errors.Is(unavailable, ErrProductUnavailable) {
		t.Fatal("ProductUnavailableError must match ErrProductUnavailable")
	}
	if errors.Is(unavailable, ErrStockConflict) {
		t.Fatal("ProductUnavailableError must not match ErrStockConflict")
	}
	if !errors.Is(fmt.Errorf("checkout: %w", conflict), ErrStockConflict) {
		t.Fatal("wrapped StockConflictError must match ErrStockConflict")
	}

	var typed *ProductUnavailableError
	if !errors.As(fmt.Errorf("wrap: %w", unavailable), &typed) || typed.ProductName != "Arabica Beans" {
		t.Fatal("errors.As should expose offending product")
	}
}

func TestProductUnavailableErrorMessage(t *testing.T) {
	short := &ProductUnavailableError{ProductID: 7, ProductName: "Arabica Beans", Requested: 3, Available: 1}
	if got := short.Error(); got != `product "Arabica Beans" is unavailable: requested 3, in stock 1` {
		t.Fatalf("unexpected message %q", got)
	}

	gone := &ProductUnavailableError{ProductID: 42, Requested: 2}
	if got := gone.Error(); got != "product #42 is no longer sold: requested 2" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestIsBusinessError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "empty cart", err: ErrEmptyCart, want: true},
		{name: "wrapped invalid address", err: fmt.Errorf("checkout: %w", ErrInvalidAddress), want: true},
		{name: "validation helper", err: Validation(ErrAddressRequired), want: true},
		{name: "stock conflict type", err: &StockConflictError{ProductID: 1}, want: true},
		{name: "storage failure", err: errors.New("connection reset by peer"), want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBusinessError(tt.err); got != tt.want {
				t.Errorf("IsBusinessError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationKeepsCause(t *testing.T) {
	err := Validation(ErrAddressRequired)
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected both sentinels in chain, got %v", err)
	}
	if Validation(nil) != nil {
		t.Fatal("Validation(nil) must be nil")
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "idempotency already exists", err: ErrIdempotencyKeyAlreadyExists, want: true},
		{name: "idempotency hash mismatch", err: ErrIdempotencyHashMismatch, want: true},
		{name: "wrapped idempotency conflict", err: errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")), want: true},
		{name: "non idempotency error", err: ErrStockConflict, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIdempotencyConflict(tt.err); got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

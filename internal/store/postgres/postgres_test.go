package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"inventario/internal/domain"
	"inventario/internal/store"
)

func TestUniqueProductIDsDeduplicatesAndSorts(t *testing.T) {
	ids := uniqueProductIDs([]domain.SaleItemInput{
		{ProductID: "c"},
		{ProductID: "a"},
		{ProductID: "c"},
		{ProductID: "b"},
		{ProductID: "a"},
	})
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestTranslateErrMapsTransientCodes(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := translateErr(&pgconn.PgError{Code: code})
		if !errors.Is(err, store.ErrTransient) {
			t.Fatalf("code %s: expected ErrTransient, got %v", code, err)
		}
	}
}

func TestTranslateErrMapsStockCheckViolation(t *testing.T) {
	err := translateErr(&pgconn.PgError{Code: "23514"})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestTranslateErrPassesOtherErrorsThrough(t *testing.T) {
	sentinel := errors.New("boom")
	if got := translateErr(sentinel); got != sentinel {
		t.Fatalf("expected passthrough, got %v", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected 23505 to be a unique violation")
	}
	if isUniqueViolation(errors.New("plain")) {
		t.Fatal("expected plain error not to match")
	}
}

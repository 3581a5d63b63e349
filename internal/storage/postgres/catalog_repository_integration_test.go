package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func seedProductForIntegrationTest(t *testing.T, store *Store, id string, priceMinor int64, stock int32) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := store.DB().ExecContext(ctx, `
		INSERT INTO products (id, name, price_minor, stock)
		VALUES ($1, $2, $3, $4)
	`, id, "Widget "+id, priceMinor, stock)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func TestCatalogRepository_PostgresConditionalDecrement(t *testing.T) {
	store := newTestStore(t)
	catalog := NewCatalogRepository(store)

	seedProductForIntegrationTest(t, store, "p-1", 55000, 3)

	ok, err := catalog.TryDecrementStock("p-1", 2)
	if err != nil || !ok {
		t.Fatalf("decrement 2: ok=%v err=%v", ok, err)
	}

	ok, err = catalog.TryDecrementStock("p-1", 2)
	if err != nil {
		t.Fatalf("decrement beyond stock: %v", err)
	}
	if ok {
		t.Fatal("expected conditional decrement to refuse, stock is 1")
	}

	product, err := catalog.GetProduct("p-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 1 {
		t.Fatalf("stock = %d, want 1", product.Stock)
	}

	if _, err := catalog.TryDecrementStock("missing", 1); !domain.IsNotFound(err) {
		t.Fatalf("missing product: expected not_found, got %v", err)
	}
}

func TestCatalogRepository_PostgresSalesCountFloor(t *testing.T) {
	store := newTestStore(t)
	catalog := NewCatalogRepository(store)

	seedProductForIntegrationTest(t, store, "p-1", 55000, 10)

	if err := catalog.IncrementSalesCount("p-1", 2); err != nil {
		t.Fatalf("increment sales: %v", err)
	}
	if err := catalog.DecrementSalesCount("p-1", 5); err != nil {
		t.Fatalf("decrement sales: %v", err)
	}
	if err := catalog.IncrementStock("p-1", 3); err != nil {
		t.Fatalf("increment stock: %v", err)
	}

	product, err := catalog.GetProduct("p-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.SalesCount != 0 {
		t.Fatalf("sales count = %d, want 0 (floored)", product.SalesCount)
	}
	if product.Stock != 13 {
		t.Fatalf("stock = %d, want 13", product.Stock)
	}
}

package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nazeru/storefront-go/internal/catalog"
)

// racingCatalog lets validation pass and then fails the reservation of one
// product, as if another buyer reserved it in between.
type racingCatalog struct {
	*catalog.MemoryStore
	failOn   string
	restored []string
}

func (c *racingCatalog) ReserveStock(ctx context.Context, id string, quantity int) error {
	if id == c.failOn {
		return &catalog.StockError{ProductID: id, Requested: quantity}
	}
	return c.MemoryStore.ReserveStock(ctx, id, quantity)
}

func (c *racingCatalog) RestoreStock(ctx context.Context, id string, quantity int) error {
	c.restored = append(c.restored, id)
	return c.MemoryStore.RestoreStock(ctx, id, quantity)
}

func testProducts() []catalog.Product {
	return []catalog.Product{
		{ID: "P1", Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5, IsActive: true},
		{ID: "P2", Name: "Cap", Price: decimal.RequireFromString("15.00"), Stock: 2, IsActive: true},
		{ID: "P3", Name: "Pen", Price: decimal.RequireFromString("1.25"), Stock: 10, IsActive: true},
		{ID: "OFF", Name: "Old", Price: decimal.RequireFromString("1.00"), Stock: 10, IsActive: false},
	}
}

func stockOf(t *testing.T, s *catalog.MemoryStore, id string) int {
	t.Helper()
	p, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return p.Stock
}

func TestReserveSnapshotsAndDecrements(t *testing.T) {
	store := catalog.NewMemoryStore(testProducts()...)
	e := NewEngine(store, zap.NewNop())

	r, err := e.Reserve(context.Background(), []Line{{ProductID: "P1", Quantity: 2}, {ProductID: "P3", Quantity: 4}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(r.Items) != 2 || r.Items[0].Name != "Mug" || !r.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("unexpected snapshot: %+v", r.Items)
	}
	if got := stockOf(t, store, "P1"); got != 3 {
		t.Errorf("expected P1 stock 3, got %d", got)
	}
	if got := stockOf(t, store, "P3"); got != 6 {
		t.Errorf("expected P3 stock 6, got %d", got)
	}

	r.Release(context.Background())
	r.Release(context.Background())
	if got := stockOf(t, store, "P1"); got != 5 {
		t.Errorf("expected P1 stock restored to 5, got %d", got)
	}
}

func TestReserveValidationFailuresLeaveStockUntouched(t *testing.T) {
	tests := []struct {
		name    string
		lines   []Line
		wantErr error
	}{
		{name: "missing_product", lines: []Line{{ProductID: "P1", Quantity: 1}, {ProductID: "NOPE", Quantity: 1}}, wantErr: catalog.ErrProductNotFound},
		{name: "inactive_product", lines: []Line{{ProductID: "OFF", Quantity: 1}}, wantErr: catalog.ErrProductNotFound},
		{name: "short_stock", lines: []Line{{ProductID: "P1", Quantity: 1}, {ProductID: "P2", Quantity: 3}}, wantErr: catalog.ErrInsufficientStock},
		{name: "duplicate_lines_exceed_stock", lines: []Line{{ProductID: "P2", Quantity: 1}, {ProductID: "P2", Quantity: 2}}, wantErr: catalog.ErrInsufficientStock},
		{name: "zero_quantity", lines: []Line{{ProductID: "P1", Quantity: 0}}, wantErr: catalog.ErrInvalidQuantity},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := catalog.NewMemoryStore(testProducts()...)
			e := NewEngine(store, zap.NewNop())

			_, err := e.Reserve(context.Background(), test.lines)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("expected %v, got %v", test.wantErr, err)
			}
			for _, p := range testProducts() {
				if got := stockOf(t, store, p.ID); got != p.Stock {
					t.Errorf("%s stock changed from %d to %d", p.ID, p.Stock, got)
				}
			}
		})
	}
}

func TestReserveStockErrorDetails(t *testing.T) {
	store := catalog.NewMemoryStore(testProducts()...)
	e := NewEngine(store, zap.NewNop())

	_, err := e.Reserve(context.Background(), []Line{{ProductID: "P2", Quantity: 3}})
	var stockErr *catalog.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if stockErr.ProductID != "P2" || stockErr.Requested != 3 || stockErr.Available != 2 {
		t.Errorf("unexpected details: %+v", stockErr)
	}
}

func TestReserveCompensatesInReverseOnRace(t *testing.T) {
	c := &racingCatalog{MemoryStore: catalog.NewMemoryStore(testProducts()...), failOn: "P3"}
	e := NewEngine(c, zap.NewNop())

	_, err := e.Reserve(context.Background(), []Line{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 1},
		{ProductID: "P3", Quantity: 1},
	})
	if !errors.Is(err, catalog.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if len(c.restored) != 2 || c.restored[0] != "P2" || c.restored[1] != "P1" {
		t.Errorf("expected reverse restoration [P2 P1], got %v", c.restored)
	}
	if got := stockOf(t, c.MemoryStore, "P1"); got != 5 {
		t.Errorf("expected P1 stock 5, got %d", got)
	}
	if got := stockOf(t, c.MemoryStore, "P2"); got != 2 {
		t.Errorf("expected P2 stock 2, got %d", got)
	}
}

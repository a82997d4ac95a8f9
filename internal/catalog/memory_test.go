package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(
		Product{ID: "P1", Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5, IsActive: true},
		Product{ID: "P2", Name: "Poster", Price: decimal.RequireFromString("4.50"), Stock: 3, IsActive: false},
	)
}

func TestMemoryStoreFindActiveByID(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "active", id: "P1"},
		{name: "inactive", id: "P2", wantErr: ErrProductNotFound},
		{name: "missing", id: "P9", wantErr: ErrProductNotFound},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := s.FindActiveByID(ctx, test.id)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("expected error %v, got %v", test.wantErr, err)
			}
			if test.wantErr == nil && p.ID != test.id {
				t.Errorf("expected product %s, got %s", test.id, p.ID)
			}
		})
	}
}

func TestMemoryStoreReserveStock(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.ReserveStock(ctx, "P1", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := s.Get(ctx, "P1")
	if p.Stock != 3 {
		t.Errorf("expected stock 3, got %d", p.Stock)
	}

	err := s.ReserveStock(ctx, "P1", 4)
	var stockErr *StockError
	if !errors.As(err, &stockErr) || !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if stockErr.Requested != 4 || stockErr.Available != 3 {
		t.Errorf("unexpected stock error details: %+v", stockErr)
	}
	p, _ = s.Get(ctx, "P1")
	if p.Stock != 3 {
		t.Errorf("failed reservation changed stock to %d", p.Stock)
	}

	if err := s.ReserveStock(ctx, "P2", 1); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound for inactive product, got %v", err)
	}
	if err := s.ReserveStock(ctx, "P1", 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestMemoryStoreRestoreStock(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if err := s.RestoreStock(ctx, "P2", 2); err != nil {
		t.Fatalf("restore on inactive product: %v", err)
	}
	p, _ := s.Get(ctx, "P2")
	if p.Stock != 5 {
		t.Errorf("expected stock 5, got %d", p.Stock)
	}

	if err := s.RestoreStock(ctx, "P9", 1); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestMemoryStoreConcurrentReservationsNeverOversell(t *testing.T) {
	s := NewMemoryStore(Product{ID: "P1", Name: "Mug", Price: decimal.NewFromInt(1), Stock: 50, IsActive: true})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ReserveStock(ctx, "P1", 1); err == nil {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, _ := s.Get(ctx, "P1")
	if reserved != 50 {
		t.Errorf("expected 50 successful reservations, got %d", reserved)
	}
	if p.Stock != 0 {
		t.Errorf("expected stock 0, got %d", p.Stock)
	}
}

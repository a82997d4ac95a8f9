package catalog

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps products in process. One mutex guards every stock
// mutation, which makes check-and-decrement atomic for all callers sharing
// the store.
type MemoryStore struct {
	mu       sync.Mutex
	products map[string]Product
	now      func() time.Time
}

func NewMemoryStore(products ...Product) *MemoryStore {
	s := &MemoryStore{
		products: make(map[string]Product, len(products)),
		now:      time.Now,
	}
	for _, p := range products {
		_ = s.Upsert(context.Background(), p)
	}
	return s
}

func (s *MemoryStore) Upsert(_ context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.LowStockThreshold == 0 {
		p.LowStockThreshold = DefaultLowStockThreshold
	}
	p.UpdatedAt = s.now()
	s.products[p.ID] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (s *MemoryStore) FindActiveByID(ctx context.Context, id string) (*Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *MemoryStore) ReserveStock(_ context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || !p.IsActive {
		return ErrProductNotFound
	}
	if p.Stock < quantity {
		return &StockError{ProductID: id, Name: p.Name, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	p.UpdatedAt = s.now()
	s.products[id] = p
	return nil
}

func (s *MemoryStore) RestoreStock(_ context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Stock += quantity
	p.UpdatedAt = s.now()
	s.products[id] = p
	return nil
}

package order

import (
	"context"
	"sort"
	"sync"

	"github.com/nazeru/storefront-go/internal/order/domain"
)

type MemoryLedger struct {
	mu       sync.Mutex
	byID     map[string]*domain.Order
	byNumber map[string]string
	byKey    map[string]string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byID:     make(map[string]*domain.Order),
		byNumber: make(map[string]string),
		byKey:    make(map[string]string),
	}
}

func (l *MemoryLedger) Create(_ context.Context, o *domain.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byNumber[o.Number]; ok {
		return ErrDuplicateOrderNumber
	}
	if o.IdempotencyKey != "" {
		if _, ok := l.byKey[o.IdempotencyKey]; ok {
			return ErrDuplicateIdempotencyKey
		}
		l.byKey[o.IdempotencyKey] = o.ID
	}
	l.byID[o.ID] = o.Clone()
	l.byNumber[o.Number] = o.ID
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(id)
}

func (l *MemoryLedger) get(id string) (*domain.Order, error) {
	o, ok := l.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (l *MemoryLedger) GetByNumber(_ context.Context, number string) (*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(l.byNumber[number])
}

func (l *MemoryLedger) GetByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(l.byKey[key])
}

func (l *MemoryLedger) Update(_ context.Context, id string, mutate func(o *domain.Order) error) (*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.get(id)
	if err != nil {
		return nil, err
	}
	if err := mutate(o); err != nil {
		return nil, err
	}
	l.byID[id] = o.Clone()
	return o, nil
}

func (l *MemoryLedger) ListByCustomer(_ context.Context, customerID string, limit int) ([]*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = MaxPageLimit
	}
	out := l.filter(func(o *domain.Order) bool { return o.CustomerID == customerID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) List(_ context.Context, f ListFilter) ([]*domain.Order, int, error) {
	f = f.normalized()

	l.mu.Lock()
	defer l.mu.Unlock()

	all := l.filter(func(o *domain.Order) bool { return f.Status == "" || o.Status == f.Status })
	total := len(all)
	start := f.offset()
	if start >= total {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// filter returns clones, newest first.
func (l *MemoryLedger) filter(keep func(o *domain.Order) bool) []*domain.Order {
	var out []*domain.Order
	for _, o := range l.byID {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

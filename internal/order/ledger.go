package order

import (
	"context"

	"github.com/nazeru/storefront-go/internal/order/domain"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type ListFilter struct {
	Status domain.OrderStatus
	Page   int
	Limit  int
}

func (f ListFilter) normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

// Ledger stores orders. Create fails with ErrDuplicateOrderNumber or
// ErrDuplicateIdempotencyKey on uniqueness violations. Update runs mutate on
// a locked copy and persists it only when mutate returns nil; status history
// entries already stored are never rewritten.
type Ledger interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	Update(ctx context.Context, id string, mutate func(o *domain.Order) error) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*domain.Order, error)
	List(ctx context.Context, f ListFilter) ([]*domain.Order, int, error)
}

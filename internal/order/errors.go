package order

import (
	"errors"

	"github.com/nazeru/storefront-go/internal/order/domain"
)

var (
	ErrEmptyCart           = errors.New("no items in order")
	ErrInvalidInput        = errors.New("invalid order input")
	ErrOrderNotFound       = errors.New("order not found")
	ErrNotCancellable      = errors.New("order cannot be cancelled at this stage")
	ErrPersistenceConflict = errors.New("order could not be stored, please retry")

	ErrDuplicateOrderNumber    = errors.New("duplicate order number")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	ErrInvalidTransition = domain.ErrInvalidTransition
)

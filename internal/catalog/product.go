package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// StockError reports a reservation that would have driven stock below zero.
// It matches ErrInsufficientStock with errors.Is.
type StockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

const DefaultLowStockThreshold = 10

type Product struct {
	ID                string
	SKU               string
	Name              string
	Category          string
	Price             decimal.Decimal
	Stock             int
	IsActive          bool
	LowStockThreshold int
	UpdatedAt         time.Time
}

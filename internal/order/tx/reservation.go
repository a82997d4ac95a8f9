package tx

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nazeru/storefront-go/internal/catalog"
	"github.com/nazeru/storefront-go/internal/order/domain"
	"github.com/nazeru/storefront-go/pkg/logging"
)

type Line struct {
	ProductID string
	Quantity  int
}

type Catalog interface {
	FindActiveByID(ctx context.Context, id string) (*catalog.Product, error)
	ReserveStock(ctx context.Context, id string, quantity int) error
	RestoreStock(ctx context.Context, id string, quantity int) error
}

// Engine reserves stock for a whole cart or for none of it.
//
// Phase one validates every line against live stock without mutating
// anything. Phase two reserves line by line in input order; a failure there
// (another buyer won the race) restores the lines already reserved, newest
// first, before the error is returned.
type Engine struct {
	catalog Catalog
	log     *zap.Logger
}

func NewEngine(c Catalog, log *zap.Logger) *Engine {
	return &Engine{catalog: c, log: log}
}

// Reservation holds the item snapshots for reserved lines until the order is
// persisted. Release undoes it.
type Reservation struct {
	Items []domain.Item

	engine   *Engine
	reserved int
}

func (e *Engine) Reserve(ctx context.Context, lines []Line) (*Reservation, error) {
	items, err := e.validate(ctx, lines)
	if err != nil {
		return nil, err
	}

	r := &Reservation{Items: items, engine: e}
	for _, it := range items {
		if err := e.catalog.ReserveStock(ctx, it.ProductID, it.Quantity); err != nil {
			e.log.Info("reservation lost race, compensating",
				logging.Step("reserve_stock"), logging.ProductID(it.ProductID), zap.Error(err))
			r.release(ctx)
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, it.ProductID)
			}
			return nil, err
		}
		r.reserved++
	}
	return r, nil
}

func (e *Engine) validate(ctx context.Context, lines []Line) ([]domain.Item, error) {
	items := make([]domain.Item, 0, len(lines))
	requested := make(map[string]int, len(lines))

	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %s", catalog.ErrInvalidQuantity, l.ProductID)
		}
		p, err := e.catalog.FindActiveByID(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, l.ProductID)
			}
			return nil, err
		}

		// The same product may appear on several lines; check the running sum.
		requested[p.ID] += l.Quantity
		if p.Stock < requested[p.ID] {
			return nil, &catalog.StockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: requested[p.ID],
				Available: p.Stock,
			}
		}

		items = append(items, domain.Item{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  l.Quantity,
		})
	}
	return items, nil
}

// Release restores every reserved line. Safe to call more than once.
func (r *Reservation) Release(ctx context.Context) {
	r.release(ctx)
}

func (r *Reservation) release(ctx context.Context) {
	for i := r.reserved - 1; i >= 0; i-- {
		it := r.Items[i]
		if err := r.engine.catalog.RestoreStock(ctx, it.ProductID, it.Quantity); err != nil {
			r.engine.log.Error("compensating restore failed",
				logging.Step("release_stock"), logging.ProductID(it.ProductID),
				zap.Int("quantity", it.Quantity), zap.Error(err))
		}
	}
	r.reserved = 0
}

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore keeps stock atomicity in the database: reservations are a
// single conditional UPDATE, so concurrent callers on any number of
// processes can never oversell.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Product, error) {
	var (
		p     Product
		price string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(sku, ''), name, category, price::text, stock, is_active, low_stock_threshold, updated_at
		FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &price, &p.Stock, &p.IsActive, &p.LowStockThreshold, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("load product %s: %w", id, err)
	}

	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s price: %w", id, err)
	}
	return &p, nil
}

func (s *PostgresStore) FindActiveByID(ctx context.Context, id string) (*Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *PostgresStore) ReserveStock(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND is_active AND stock >= $2`,
		id, quantity,
	)
	if err != nil {
		return fmt.Errorf("reserve stock %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing matched: tell a missing product apart from a short one.
	p, err := s.FindActiveByID(ctx, id)
	if err != nil {
		return err
	}
	return &StockError{ProductID: id, Name: p.Name, Requested: quantity, Available: p.Stock}
}

func (s *PostgresStore) RestoreStock(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`,
		id, quantity,
	)
	if err != nil {
		return fmt.Errorf("restore stock %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Upsert seeds or replaces a product. Catalog management proper lives
// elsewhere; this exists for fixtures and the CLI demo data.
func (s *PostgresStore) Upsert(ctx context.Context, p Product) error {
	if p.LowStockThreshold == 0 {
		p.LowStockThreshold = DefaultLowStockThreshold
	}
	var sku any
	if p.SKU != "" {
		sku = p.SKU
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products(id, sku, name, category, price, stock, is_active, low_stock_threshold)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET sku = EXCLUDED.sku, name = EXCLUDED.name,
			category = EXCLUDED.category, price = EXCLUDED.price, stock = EXCLUDED.stock,
			is_active = EXCLUDED.is_active, low_stock_threshold = EXCLUDED.low_stock_threshold,
			updated_at = now()`,
		p.ID, sku, p.Name, p.Category, p.Price.String(), p.Stock, p.IsActive, p.LowStockThreshold,
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

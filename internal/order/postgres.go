package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/storefront-go/internal/order/domain"
	"github.com/nazeru/storefront-go/internal/storage/postgres"
	"github.com/nazeru/storefront-go/pkg/contracts"
	"github.com/nazeru/storefront-go/pkg/outbox"
)

const (
	numberConstraint      = "orders_number_key"
	idempotencyConstraint = "order_idempotency_pkey"
)

const orderColumns = `id, order_number, customer_id, customer_email,
	subtotal::text, tax::text, shipping_cost::text, discount_code, discount_amount::text, total::text,
	status, shipping_address, billing_address, payment_method, payment_status, shipping_method,
	tracking_number, carrier, estimated_delivery, delivered_at,
	customer_note, is_gift, gift_message, COALESCE(idempotency_key, ''), created_at, updated_at`

// PostgresLedger stores orders across orders, order_items and
// order_status_history, and writes an outbox event in the same transaction
// as every change.
type PostgresLedger struct {
	pool  *pgxpool.Pool
	topic string
}

func NewPostgresLedger(pool *pgxpool.Pool, topic string) *PostgresLedger {
	return &PostgresLedger{pool: pool, topic: topic}
}

func (l *PostgresLedger) Create(ctx context.Context, o *domain.Order) error {
	err := postgres.InTx(ctx, l.pool, func(tx pgx.Tx) error {
		var key any
		if o.IdempotencyKey != "" {
			key = o.IdempotencyKey
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO orders(id, order_number, customer_id, customer_email,
				subtotal, tax, shipping_cost, discount_code, discount_amount, total,
				status, shipping_address, billing_address, payment_method, payment_status, shipping_method,
				tracking_number, carrier, estimated_delivery, delivered_at,
				customer_note, is_gift, gift_message, idempotency_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9::numeric, $10::numeric,
				$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
			o.ID, o.Number, o.CustomerID, o.CustomerEmail,
			o.Subtotal.String(), o.Tax.String(), o.ShippingCost.String(), o.DiscountCode, o.DiscountAmount.String(), o.Total.String(),
			string(o.Status), o.ShippingAddress, o.BillingAddress,
			string(o.PaymentMethod), string(o.PaymentStatus), string(o.ShippingMethod),
			o.TrackingNumber, o.Carrier, o.EstimatedDelivery, o.DeliveredAt,
			o.CustomerNote, o.IsGift, o.GiftMessage, key, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, it := range o.Items {
			_, err := tx.Exec(ctx,
				`INSERT INTO order_items(order_id, line_no, product_id, name, unit_price, quantity)
				VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
				o.ID, i+1, it.ProductID, it.Name, it.UnitPrice.String(), it.Quantity,
			)
			if err != nil {
				return fmt.Errorf("insert order item %d: %w", i+1, err)
			}
		}

		if err := insertHistory(ctx, tx, o.ID, o.StatusHistory); err != nil {
			return err
		}

		if key != nil {
			_, err := tx.Exec(ctx,
				`INSERT INTO order_idempotency(idempotency_key, order_id) VALUES ($1, $2)`,
				o.IdempotencyKey, o.ID,
			)
			if err != nil {
				return fmt.Errorf("insert idempotency key: %w", err)
			}
		}

		return l.emit(ctx, tx, contracts.EventOrderPlaced, o, "")
	})

	if constraint, ok := postgres.UniqueViolation(err); ok {
		switch constraint {
		case numberConstraint:
			return ErrDuplicateOrderNumber
		case idempotencyConstraint:
			return ErrDuplicateIdempotencyKey
		}
	}
	return err
}

func insertHistory(ctx context.Context, q postgres.Querier, orderID string, entries []domain.StatusEntry) error {
	for _, e := range entries {
		_, err := q.Exec(ctx,
			`INSERT INTO order_status_history(order_id, status, note, updated_by, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			orderID, string(e.Status), e.Note, e.UpdatedBy, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}
	return nil
}

func (l *PostgresLedger) emit(ctx context.Context, q postgres.Querier, typ string, o *domain.Order, previous domain.OrderStatus) error {
	var note string
	if n := len(o.StatusHistory); n > 0 {
		note = o.StatusHistory[n-1].Note
	}
	evt := contracts.Event{
		EventID:     uuid.NewString(),
		Type:        typ,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		CreatedAt:   o.UpdatedAt,
		Payload: contracts.OrderPayload{
			CustomerID:     o.CustomerID,
			CustomerEmail:  o.CustomerEmail,
			Status:         string(o.Status),
			PreviousStatus: string(previous),
			Total:          o.Total.StringFixed(2),
			Note:           note,
			TrackingNumber: o.TrackingNumber,
			Carrier:        o.Carrier,
		},
	}
	if err := outbox.Insert(ctx, q, evt.EventID, l.topic, evt.Key(), evt); err != nil {
		return fmt.Errorf("insert outbox %s: %w", typ, err)
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, id string) (*domain.Order, error) {
	return l.loadOne(ctx, l.pool, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (l *PostgresLedger) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return l.loadOne(ctx, l.pool, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
}

func (l *PostgresLedger) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return l.loadOne(ctx, l.pool,
		`SELECT `+orderColumns+` FROM orders
		WHERE id = (SELECT order_id FROM order_idempotency WHERE idempotency_key = $1)`, key)
}

// Update locks the order row for the duration of mutate, so concurrent
// status changes on one order serialize.
func (l *PostgresLedger) Update(ctx context.Context, id string, mutate func(o *domain.Order) error) (*domain.Order, error) {
	var out *domain.Order
	err := postgres.InTx(ctx, l.pool, func(tx pgx.Tx) error {
		o, err := l.loadOne(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		previous := o.Status
		stored := len(o.StatusHistory)

		if err := mutate(o); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE orders SET status = $2, payment_status = $3, tracking_number = $4, carrier = $5,
				delivered_at = $6, updated_at = $7
			WHERE id = $1`,
			o.ID, string(o.Status), string(o.PaymentStatus), o.TrackingNumber, o.Carrier, o.DeliveredAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if len(o.StatusHistory) < stored {
			return fmt.Errorf("update order %s: status history shrank", id)
		}
		if err := insertHistory(ctx, tx, o.ID, o.StatusHistory[stored:]); err != nil {
			return err
		}

		if o.Status != previous {
			typ := contracts.EventOrderStatusChanged
			if o.Status == domain.OrderStatusCancelled {
				typ = contracts.EventOrderCancelled
			}
			if err := l.emit(ctx, tx, typ, o, previous); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *PostgresLedger) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = MaxPageLimit
	}
	return l.loadMany(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1
		ORDER BY created_at DESC, order_number DESC LIMIT $2`,
		customerID, limit)
}

func (l *PostgresLedger) List(ctx context.Context, f ListFilter) ([]*domain.Order, int, error) {
	f = f.normalized()

	var total int
	err := l.pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE $1 = '' OR status = $1`, string(f.Status),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	orders, err := l.loadMany(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, order_number DESC LIMIT $2 OFFSET $3`,
		string(f.Status), f.Limit, f.offset())
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (l *PostgresLedger) loadOne(ctx context.Context, q postgres.Querier, query string, args ...any) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	if err := loadChildren(ctx, q, map[string]*domain.Order{o.ID: o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (l *PostgresLedger) loadMany(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	byID := make(map[string]*domain.Order)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	if err := loadChildren(ctx, l.pool, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                                                domain.Order
		status, paymentMethod, paymentStatus, shipMethod string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.CustomerEmail,
		&o.Subtotal, &o.Tax, &o.ShippingCost, &o.DiscountCode, &o.DiscountAmount, &o.Total,
		&status, &o.ShippingAddress, &o.BillingAddress, &paymentMethod, &paymentStatus, &shipMethod,
		&o.TrackingNumber, &o.Carrier, &o.EstimatedDelivery, &o.DeliveredAt,
		&o.CustomerNote, &o.IsGift, &o.GiftMessage, &o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.ShippingMethod = domain.ShippingMethod(shipMethod)
	return &o, nil
}

// loadChildren fills items and history for a batch of orders with one
// query each.
func loadChildren(ctx context.Context, q postgres.Querier, byID map[string]*domain.Order) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := q.Query(ctx,
		`SELECT order_id, product_id, name, unit_price::text, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	for rows.Next() {
		var (
			orderID string
			it      domain.Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			rows.Close()
			return fmt.Errorf("scan order item: %w", err)
		}
		byID[orderID].Items = append(byID[orderID].Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT order_id, status, note, updated_by, created_at
		FROM order_status_history WHERE order_id = ANY($1) ORDER BY order_id, id`, ids)
	if err != nil {
		return fmt.Errorf("load status history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID, status string
			e               domain.StatusEntry
			at              time.Time
		)
		if err := rows.Scan(&orderID, &status, &e.Note, &e.UpdatedBy, &at); err != nil {
			return fmt.Errorf("scan status history: %w", err)
		}
		e.Status = domain.OrderStatus(status)
		e.Timestamp = at.UTC()
		byID[orderID].StatusHistory = append(byID[orderID].StatusHistory, e)
	}
	return rows.Err()
}

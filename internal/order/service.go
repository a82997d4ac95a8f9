package order

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nazeru/storefront-go/internal/catalog"
	"github.com/nazeru/storefront-go/internal/order/domain"
	"github.com/nazeru/storefront-go/internal/order/tx"
	"github.com/nazeru/storefront-go/pkg/logging"
	"github.com/nazeru/storefront-go/pkg/metrics"
)

const (
	numberAttempts = 5
	placedNote     = "Order placed"
	cancelledNote  = "Cancelled by customer"
)

type trackingCache interface {
	Fetch(ctx context.Context, number string, load func(ctx context.Context) (domain.Tracking, error)) (domain.Tracking, error)
	Invalidate(ctx context.Context, number string, version int64) error
}

type Deps struct {
	Ledger  Ledger
	Catalog tx.Catalog
	Logger  *zap.Logger

	// Optional.
	Metrics   *metrics.OrderMetrics
	Tracking  trackingCache
	Clock     func() time.Time
	NewID     func() string
	NewNumber func(at time.Time) string

	// StrictTransitions enforces the status transition table. When false any
	// known status may follow any other.
	StrictTransitions bool
}

type Service struct {
	ledger    Ledger
	catalog   tx.Catalog
	engine    *tx.Engine
	log       *zap.Logger
	metrics   *metrics.OrderMetrics
	tracking  trackingCache
	clock     func() time.Time
	newID     func() string
	newNumber func(time.Time) string
	strict    bool
}

func NewService(deps Deps) (*Service, error) {
	if deps.Ledger == nil {
		return nil, errors.New("order service: ledger is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog is required")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	newNumber := deps.NewNumber
	if newNumber == nil {
		newNumber = domain.NewOrderNumber
	}

	return &Service{
		ledger:    deps.Ledger,
		catalog:   deps.Catalog,
		engine:    tx.NewEngine(deps.Catalog, log),
		log:       log,
		metrics:   deps.Metrics,
		tracking:  deps.Tracking,
		clock:     func() time.Time { return clock().UTC() },
		newID:     newID,
		newNumber: newNumber,
		strict:    deps.StrictTransitions,
	}, nil
}

type CartLine struct {
	ProductID string
	Quantity  int
}

type PlaceOrderInput struct {
	CustomerID      string
	CustomerEmail   string
	Lines           []CartLine
	ShippingAddress domain.Address
	BillingAddress  *domain.Address
	PaymentMethod   string
	ShippingMethod  string
	CustomerNote    string
	IsGift          bool
	GiftMessage     string
	IdempotencyKey  string
}

// placement is a PlaceOrderInput that passed validation. Only these values
// reach the ledger.
type placement struct {
	customerID     string
	customerEmail  string
	lines          []tx.Line
	shipping       domain.Address
	billing        domain.Address
	paymentMethod  domain.PaymentMethod
	shippingMethod domain.ShippingMethod
	note           string
	isGift         bool
	giftMessage    string
	idempotencyKey string
}

func validatePlacement(in PlaceOrderInput) (placement, error) {
	if len(in.Lines) == 0 {
		return placement{}, ErrEmptyCart
	}

	p := placement{
		customerID:     strings.TrimSpace(in.CustomerID),
		customerEmail:  strings.TrimSpace(in.CustomerEmail),
		note:           strings.TrimSpace(in.CustomerNote),
		isGift:         in.IsGift,
		idempotencyKey: strings.TrimSpace(in.IdempotencyKey),
	}
	if p.customerID == "" {
		return placement{}, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(p.customerEmail); err != nil {
		return placement{}, fmt.Errorf("%w: customer email is invalid", ErrInvalidInput)
	}
	if p.isGift {
		p.giftMessage = strings.TrimSpace(in.GiftMessage)
	}

	p.lines = make([]tx.Line, 0, len(in.Lines))
	for i, l := range in.Lines {
		id := strings.TrimSpace(l.ProductID)
		if id == "" || l.Quantity < 1 {
			return placement{}, fmt.Errorf("%w: item %d must have productId and quantity >= 1", ErrInvalidInput, i+1)
		}
		p.lines = append(p.lines, tx.Line{ProductID: id, Quantity: l.Quantity})
	}

	var err error
	if p.paymentMethod, err = domain.ParsePaymentMethod(in.PaymentMethod); err != nil {
		return placement{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if p.shippingMethod, err = domain.ParseShippingMethod(in.ShippingMethod); err != nil {
		return placement{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	p.shipping = in.ShippingAddress.Normalize()
	if err := p.shipping.Validate(); err != nil {
		return placement{}, fmt.Errorf("%w: shipping %v", ErrInvalidInput, err)
	}
	p.billing = p.shipping
	if in.BillingAddress != nil {
		p.billing = in.BillingAddress.Normalize()
		if err := p.billing.Validate(); err != nil {
			return placement{}, fmt.Errorf("%w: billing %v", ErrInvalidInput, err)
		}
	}
	return p, nil
}

// PlaceOrder validates the cart, reserves stock for every line, prices the
// order and stores it as pending. Either an order is stored and all its
// lines are reserved, or nothing changes.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error) {
	start := time.Now()

	p, err := validatePlacement(in)
	if err != nil {
		s.placementFailed(err)
		return nil, err
	}

	if p.idempotencyKey != "" {
		existing, err := s.ledger.GetByIdempotencyKey(ctx, p.idempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	res, err := s.engine.Reserve(ctx, p.lines)
	if err != nil {
		s.placementFailed(err)
		return nil, err
	}

	now := s.clock()
	o := &domain.Order{
		ID:              s.newID(),
		CustomerID:      p.customerID,
		CustomerEmail:   p.customerEmail,
		Items:           res.Items,
		DiscountAmount:  decimal.Zero,
		ShippingAddress: p.shipping,
		BillingAddress:  p.billing,
		PaymentMethod:   p.paymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingMethod:  p.shippingMethod,
		CustomerNote:    p.note,
		IsGift:          p.isGift,
		GiftMessage:     p.giftMessage,
		IdempotencyKey:  p.idempotencyKey,
		CreatedAt:       now,
	}
	price(o)
	eta := domain.EstimatedDelivery(o.ShippingMethod, now)
	o.EstimatedDelivery = &eta
	o.ApplyStatus(domain.OrderStatusPending, placedNote, "", now)

	// Compensation must run even when the request context is already gone.
	release := func() { res.Release(context.WithoutCancel(ctx)) }

	for attempt := 1; ; attempt++ {
		o.Number = s.newNumber(now)
		err = s.ledger.Create(ctx, o)
		if err == nil {
			break
		}

		switch {
		case errors.Is(err, ErrDuplicateOrderNumber) && attempt < numberAttempts:
			s.log.Warn("order number collision, retrying",
				logging.OrderNumber(o.Number), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, ErrDuplicateOrderNumber):
			release()
			s.placementFailed(ErrPersistenceConflict)
			return nil, fmt.Errorf("%w: no free order number after %d attempts", ErrPersistenceConflict, attempt)
		case errors.Is(err, ErrDuplicateIdempotencyKey):
			// A concurrent request with the same key won.
			release()
			existing, lerr := s.ledger.GetByIdempotencyKey(ctx, p.idempotencyKey)
			if lerr != nil {
				return nil, fmt.Errorf("%w: %v", ErrPersistenceConflict, lerr)
			}
			return existing, nil
		default:
			release()
			s.log.Error("order persist failed", logging.OrderID(o.ID), zap.Error(err))
			s.placementFailed(err)
			return nil, fmt.Errorf("persist order: %w", err)
		}
	}

	s.log.Info("order placed",
		logging.OrderID(o.ID), logging.OrderNumber(o.Number), logging.Status(string(o.Status)),
		zap.String("total", o.Total.StringFixed(2)), logging.Duration(time.Since(start)))
	if s.metrics != nil {
		s.metrics.Placed.WithLabelValues(string(o.ShippingMethod)).Inc()
	}
	return o, nil
}

// price fills subtotal, shipping, tax and total from the item snapshots.
func price(o *domain.Order) {
	o.Tax, o.ShippingCost = decimal.Zero, decimal.Zero
	o.CalculateTotals()
	o.ShippingCost = domain.ShippingCost(o.ShippingMethod, o.Subtotal)
	o.Tax = domain.Tax(o.Subtotal)
	o.CalculateTotals()
}

func (s *Service) placementFailed(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.PlacementFailures.WithLabelValues(FailureReason(err)).Inc()
}

// FailureReason classifies placement and transition errors into a small set
// of labels.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, catalog.ErrInvalidQuantity):
		return "invalid_input"
	case errors.Is(err, catalog.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, catalog.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrPersistenceConflict):
		return "persistence_conflict"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrNotCancellable):
		return "not_cancellable"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal"
	}
}

type UpdateStatusInput struct {
	OrderID        string
	Status         domain.OrderStatus
	Note           string
	UpdatedBy      string
	TrackingNumber string
	Carrier        string
}

// UpdateStatus moves an order to a new status and appends one history entry.
// A move to cancelled goes through the cancellation path so stock is
// restored.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*domain.Order, error) {
	if in.Status == domain.OrderStatusCancelled {
		return s.cancel(ctx, in.OrderID, in.Note, in.UpdatedBy)
	}

	o, err := s.ledger.Update(ctx, in.OrderID, func(o *domain.Order) error {
		if err := domain.CheckTransition(o.Status, in.Status, s.strict); err != nil {
			if errors.Is(err, domain.ErrUnknownStatus) {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return err
		}
		if tn := strings.TrimSpace(in.TrackingNumber); tn != "" {
			o.TrackingNumber = tn
		}
		if c := strings.TrimSpace(in.Carrier); c != "" {
			o.Carrier = c
		}
		o.ApplyStatus(in.Status, strings.TrimSpace(in.Note), in.UpdatedBy, s.clock())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.statusChanged(ctx, o)
	return o, nil
}

// CancelOrder cancels a pending, confirmed or processing order and restores
// the stock of every line.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	return s.cancel(ctx, orderID, reason, "")
}

func (s *Service) cancel(ctx context.Context, orderID, reason, updatedBy string) (*domain.Order, error) {
	note := strings.TrimSpace(reason)
	if note == "" {
		note = cancelledNote
	}

	// The status flips under the ledger lock before any stock moves, so of
	// two concurrent cancellations only one restores stock.
	o, err := s.ledger.Update(ctx, orderID, func(o *domain.Order) error {
		if !o.CanBeCancelled() {
			return fmt.Errorf("%w: order is %s", ErrNotCancellable, o.Status)
		}
		o.ApplyStatus(domain.OrderStatusCancelled, note, updatedBy, s.clock())
		return nil
	})
	if err != nil {
		return nil, err
	}

	restoreCtx := context.WithoutCancel(ctx)
	for _, it := range o.Items {
		err := s.catalog.RestoreStock(restoreCtx, it.ProductID, it.Quantity)
		switch {
		case err == nil:
			s.restored("ok")
		case errors.Is(err, catalog.ErrProductNotFound):
			s.log.Warn("restock skipped, product no longer exists",
				logging.OrderNumber(o.Number), logging.ProductID(it.ProductID), zap.Int("quantity", it.Quantity))
			s.restored("missing_product")
		default:
			s.log.Error("restock failed",
				logging.OrderNumber(o.Number), logging.ProductID(it.ProductID), zap.Int("quantity", it.Quantity), zap.Error(err))
			s.restored("error")
		}
	}

	s.statusChanged(ctx, o)
	return o, nil
}

func (s *Service) restored(result string) {
	if s.metrics != nil {
		s.metrics.StockRestorations.WithLabelValues(result).Inc()
	}
}

func (s *Service) statusChanged(ctx context.Context, o *domain.Order) {
	s.log.Info("order status changed",
		logging.OrderID(o.ID), logging.OrderNumber(o.Number), logging.Status(string(o.Status)))
	if s.metrics != nil {
		s.metrics.StatusChanges.WithLabelValues(string(o.Status)).Inc()
	}
	if s.tracking != nil {
		if err := s.tracking.Invalidate(ctx, o.Number, o.Tracking().Version()); err != nil {
			s.log.Warn("tracking cache invalidation failed", logging.OrderNumber(o.Number), zap.Error(err))
		}
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.ledger.Get(ctx, id)
}

// TrackOrder returns the public tracking view for an order number.
func (s *Service) TrackOrder(ctx context.Context, number string) (domain.Tracking, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !domain.ValidOrderNumber(number) {
		return domain.Tracking{}, ErrOrderNotFound
	}

	load := func(ctx context.Context) (domain.Tracking, error) {
		o, err := s.ledger.GetByNumber(ctx, number)
		if err != nil {
			return domain.Tracking{}, err
		}
		return o.Tracking(), nil
	}
	if s.tracking == nil {
		return load(ctx)
	}
	return s.tracking.Fetch(ctx, number, load)
}

func (s *Service) ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]*domain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	return s.ledger.ListByCustomer(ctx, customerID, limit)
}

type Page struct {
	Orders []*domain.Order
	Total  int
	Page   int
	Limit  int
}

func (p Page) Pages() int {
	if p.Limit == 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

func (s *Service) ListOrders(ctx context.Context, f ListFilter) (Page, error) {
	f = f.normalized()
	if f.Status != "" && !f.Status.Valid() {
		return Page{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	orders, total, err := s.ledger.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Orders: orders, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a line snapshot taken at order time. It is never re-derived from
// the catalog afterwards.
type Item struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
	UpdatedBy string      `json:"updatedBy,omitempty"`
}

type Order struct {
	ID            string
	Number        string
	CustomerID    string
	CustomerEmail string

	Items          []Item
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	ShippingCost   decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal

	Status        OrderStatus
	StatusHistory []StatusEntry

	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	ShippingMethod  ShippingMethod

	TrackingNumber    string
	Carrier           string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time

	CustomerNote string
	IsGift       bool
	GiftMessage  string

	IdempotencyKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CalculateTotals recomputes subtotal and total from the item snapshots.
// Tax, shipping and discount must already be set.
func (o *Order) CalculateTotals() {
	subtotal := decimal.Zero
	for _, it := range o.Items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	o.Subtotal = subtotal
	o.Total = subtotal.Add(o.Tax).Add(o.ShippingCost).Sub(o.DiscountAmount)
}

func (o *Order) CanBeCancelled() bool {
	return o.Status.Cancellable()
}

// ApplyStatus sets the status and appends one history entry. It performs no
// transition check; callers decide which graph applies.
func (o *Order) ApplyStatus(status OrderStatus, note, updatedBy string, at time.Time) {
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, StatusEntry{
		Status:    status,
		Timestamp: at,
		Note:      note,
		UpdatedBy: updatedBy,
	})
	if status == OrderStatusDelivered {
		delivered := at
		o.DeliveredAt = &delivered
	}
	o.UpdatedAt = at
}

// Clone returns a deep copy so callers cannot mutate stored snapshots.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	if o.EstimatedDelivery != nil {
		t := *o.EstimatedDelivery
		c.EstimatedDelivery = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}

// Tracking is the public projection of an order. It carries no customer
// identity and only the city and state of the shipping address.
type Tracking struct {
	OrderNumber       string        `json:"orderNumber"`
	Status            OrderStatus   `json:"status"`
	StatusHistory     []StatusEntry `json:"statusHistory"`
	TrackingNumber    string        `json:"trackingNumber,omitempty"`
	Carrier           string        `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time    `json:"estimatedDelivery,omitempty"`
	ShippingAddress   Region        `json:"shippingAddress"`
}

// Version orders tracking views of one order: the time of the latest status
// change in microseconds, or 0 without history.
func (t Tracking) Version() int64 {
	if n := len(t.StatusHistory); n > 0 {
		return t.StatusHistory[n-1].Timestamp.UnixMicro()
	}
	return 0
}

func (o *Order) Tracking() Tracking {
	return Tracking{
		OrderNumber:       o.Number,
		Status:            o.Status,
		StatusHistory:     append([]StatusEntry(nil), o.StatusHistory...),
		TrackingNumber:    o.TrackingNumber,
		Carrier:           o.Carrier,
		EstimatedDelivery: o.EstimatedDelivery,
		ShippingAddress:   o.ShippingAddress.Region(),
	}
}

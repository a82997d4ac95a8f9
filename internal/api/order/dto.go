package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nazeru/storefront-go/internal/order/domain"
)

type itemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	Items           []itemRequest   `json:"items"`
	ShippingAddress domain.Address  `json:"shippingAddress"`
	BillingAddress  *domain.Address `json:"billingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	ShippingMethod  string          `json:"shippingMethod"`
	CustomerNote    string          `json:"customerNote"`
	IsGift          bool            `json:"isGift"`
	GiftMessage     string          `json:"giftMessage"`
	UserID          string          `json:"userId"`
	CustomerEmail   string          `json:"customerEmail"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type statusRequest struct {
	Status         string `json:"status"`
	Note           string `json:"note"`
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
	UpdatedBy      string `json:"updatedBy"`
}

type placedOrder struct {
	OrderNumber       string             `json:"orderNumber"`
	Total             string             `json:"total"`
	Status            domain.OrderStatus `json:"status"`
	EstimatedDelivery *time.Time         `json:"estimatedDelivery,omitempty"`
}

type itemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
}

type orderResponse struct {
	ID                string                `json:"id"`
	OrderNumber       string                `json:"orderNumber"`
	UserID            string                `json:"userId"`
	CustomerEmail     string                `json:"customerEmail"`
	Items             []itemResponse        `json:"items"`
	Subtotal          string                `json:"subtotal"`
	Tax               string                `json:"tax"`
	ShippingCost      string                `json:"shippingCost"`
	DiscountCode      string                `json:"discountCode,omitempty"`
	DiscountAmount    string                `json:"discountAmount"`
	Total             string                `json:"total"`
	Status            domain.OrderStatus    `json:"status"`
	StatusHistory     []domain.StatusEntry  `json:"statusHistory"`
	ShippingAddress   domain.Address        `json:"shippingAddress"`
	BillingAddress    domain.Address        `json:"billingAddress"`
	PaymentMethod     domain.PaymentMethod  `json:"paymentMethod"`
	PaymentStatus     domain.PaymentStatus  `json:"paymentStatus"`
	ShippingMethod    domain.ShippingMethod `json:"shippingMethod"`
	TrackingNumber    string                `json:"trackingNumber,omitempty"`
	Carrier           string                `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time            `json:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time            `json:"deliveredAt,omitempty"`
	CustomerNote      string                `json:"customerNote,omitempty"`
	IsGift            bool                  `json:"isGift"`
	GiftMessage       string                `json:"giftMessage,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toOrderResponse(o *domain.Order) orderResponse {
	items := make([]itemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     money(it.UnitPrice),
			Quantity:  it.Quantity,
		})
	}
	return orderResponse{
		ID:                o.ID,
		OrderNumber:       o.Number,
		UserID:            o.CustomerID,
		CustomerEmail:     o.CustomerEmail,
		Items:             items,
		Subtotal:          money(o.Subtotal),
		Tax:               money(o.Tax),
		ShippingCost:      money(o.ShippingCost),
		DiscountCode:      o.DiscountCode,
		DiscountAmount:    money(o.DiscountAmount),
		Total:             money(o.Total),
		Status:            o.Status,
		StatusHistory:     o.StatusHistory,
		ShippingAddress:   o.ShippingAddress,
		BillingAddress:    o.BillingAddress,
		PaymentMethod:     o.PaymentMethod,
		PaymentStatus:     o.PaymentStatus,
		ShippingMethod:    o.ShippingMethod,
		TrackingNumber:    o.TrackingNumber,
		Carrier:           o.Carrier,
		EstimatedDelivery: o.EstimatedDelivery,
		DeliveredAt:       o.DeliveredAt,
		CustomerNote:      o.CustomerNote,
		IsGift:            o.IsGift,
		GiftMessage:       o.GiftMessage,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toOrderResponses(orders []*domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

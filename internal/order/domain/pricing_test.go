package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestShippingCost(t *testing.T) {
	tests := []struct {
		name     string
		method   ShippingMethod
		subtotal string
		want     string
	}{
		{name: "standard_below_threshold", method: ShippingStandard, subtotal: "20.00", want: "5.99"},
		{name: "standard_at_threshold", method: ShippingStandard, subtotal: "50.00", want: "0"},
		{name: "standard_above_threshold", method: ShippingStandard, subtotal: "60.00", want: "0"},
		{name: "pickup_below_threshold", method: ShippingPickup, subtotal: "49.99", want: "5.99"},
		{name: "express", method: ShippingExpress, subtotal: "500", want: "9.99"},
		{name: "overnight", method: ShippingOvernight, subtotal: "1", want: "19.99"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := ShippingCost(test.method, decimal.RequireFromString(test.subtotal))
			if !got.Equal(decimal.RequireFromString(test.want)) {
				t.Errorf("expected %s, got %s", test.want, got)
			}
		})
	}
}

func TestTax(t *testing.T) {
	tests := []struct {
		subtotal, want string
	}{
		{subtotal: "20.00", want: "1.60"},
		{subtotal: "60.00", want: "4.80"},
		{subtotal: "12.34", want: "0.99"},
		{subtotal: "0", want: "0"},
	}

	for _, test := range tests {
		t.Run(test.subtotal, func(t *testing.T) {
			got := Tax(decimal.RequireFromString(test.subtotal))
			if !got.Equal(decimal.RequireFromString(test.want)) {
				t.Errorf("expected %s, got %s", test.want, got)
			}
		})
	}
}

func TestCalculateTotals(t *testing.T) {
	o := &Order{
		Items: []Item{
			{ProductID: "P1", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2},
			{ProductID: "P2", UnitPrice: decimal.RequireFromString("2.50"), Quantity: 3},
		},
		Tax:            decimal.RequireFromString("2.20"),
		ShippingCost:   decimal.RequireFromString("5.99"),
		DiscountAmount: decimal.RequireFromString("1.00"),
	}
	o.CalculateTotals()

	if !o.Subtotal.Equal(decimal.RequireFromString("27.50")) {
		t.Errorf("expected subtotal 27.50, got %s", o.Subtotal)
	}
	if !o.Total.Equal(decimal.RequireFromString("34.69")) {
		t.Errorf("expected total 34.69, got %s", o.Total)
	}
}

func TestEstimatedDelivery(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := map[ShippingMethod]int{
		ShippingStandard:  5,
		ShippingExpress:   2,
		ShippingOvernight: 1,
		ShippingPickup:    1,
	}
	for method, days := range tests {
		got := EstimatedDelivery(method, from)
		if want := from.AddDate(0, 0, days); !got.Equal(want) {
			t.Errorf("%s: expected %s, got %s", method, want, got)
		}
	}
}

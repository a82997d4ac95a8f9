package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	TaxRate               = decimal.RequireFromString("0.08")
	FreeShippingThreshold = decimal.NewFromInt(50)

	standardShippingFee  = decimal.RequireFromString("5.99")
	expressShippingFee   = decimal.RequireFromString("9.99")
	overnightShippingFee = decimal.RequireFromString("19.99")
)

// ShippingCost prices a shipping method. Standard and pickup ship free once
// the subtotal reaches FreeShippingThreshold.
func ShippingCost(method ShippingMethod, subtotal decimal.Decimal) decimal.Decimal {
	switch method {
	case ShippingExpress:
		return expressShippingFee
	case ShippingOvernight:
		return overnightShippingFee
	default:
		if subtotal.GreaterThanOrEqual(FreeShippingThreshold) {
			return decimal.Zero
		}
		return standardShippingFee
	}
}

// Tax is a flat rate rounded to cents.
func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(TaxRate).Round(2)
}

func EstimatedDelivery(method ShippingMethod, from time.Time) time.Time {
	days := 5
	switch method {
	case ShippingExpress:
		days = 2
	case ShippingOvernight, ShippingPickup:
		days = 1
	}
	return from.AddDate(0, 0, days)
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownPaymentMethod  = errors.New("unknown payment method")
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
)

type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentDebitCard    PaymentMethod = "debit_card"
	PaymentPayPal       PaymentMethod = "paypal"
	PaymentCOD          PaymentMethod = "cod"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case PaymentCreditCard, PaymentDebitCard, PaymentPayPal, PaymentCOD, PaymentBankTransfer:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, s)
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

type ShippingMethod string

const (
	ShippingStandard  ShippingMethod = "standard"
	ShippingExpress   ShippingMethod = "express"
	ShippingOvernight ShippingMethod = "overnight"
	ShippingPickup    ShippingMethod = "pickup"
)

// ParseShippingMethod defaults an empty value to standard.
func ParseShippingMethod(s string) (ShippingMethod, error) {
	m := ShippingMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return ShippingStandard, nil
	case ShippingStandard, ShippingExpress, ShippingOvernight, ShippingPickup:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownShippingMethod, s)
}

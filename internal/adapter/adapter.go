// Package adapter defines the capability used to talk to the payment provider
// and the shapes that cross it. Implementations handle all provider-specific
// concerns (transport, signing, serialization, error mapping) and hand back
// the provider's decoded response untouched.
package adapter

import (
	"context"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used whenever a caller leaves the currency empty.
const DefaultCurrency = "THB"

// PaymentGateway is implemented by each provider integration. A call either
// returns the provider's success payload or an error; provider-level failures
// are reported as *APIError so the raw error payload stays reachable.
type PaymentGateway interface {
	// Reserve registers an order with the provider before the customer authorizes it.
	Reserve(ctx context.Context, req ReserveRequest) (Payload, error)
	PaymentDetails(ctx context.Context, transactionID, orderID string) (Payload, error)
	CheckPaymentStatus(ctx context.Context, transactionID string) (Payload, error)
	Confirm(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (Payload, error)
	Void(ctx context.Context, transactionID string) (Payload, error)
	PayPreapproved(ctx context.Context, req PreapprovedPayment) (Payload, error)
	Capture(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (Payload, error)
	CheckRegKey(ctx context.Context, regKey string) (Payload, error)
	ExpireRegKey(ctx context.Context, regKey string) (Payload, error)
}

// ReserveRequest describes a reservation. Adapters translate it into their own wire format.
type ReserveRequest struct {
	Amount       decimal.Decimal
	Currency     string
	OrderID      string
	Packages     []Package
	Options      *Options
	RedirectURLs RedirectURLs
}

// Package groups products inside a reservation.
type Package struct {
	ID       string
	Amount   decimal.Decimal
	Name     string
	Products []Product
}

// Product is a single line item.
type Product struct {
	ID       string
	Name     string
	ImageURL string
	Quantity int
	Price    decimal.Decimal
}

// Options carries provider payment options.
type Options struct {
	Payment PaymentOptions
}

// PaymentOptions selects the payment type and whether the charge is captured immediately.
type PaymentOptions struct {
	PayType string // e.g. "PREAPPROVED", "NORMAL"
	Capture bool
}

// RedirectURLs are where the provider sends the customer after authorizing or cancelling.
type RedirectURLs struct {
	ConfirmURL string
	CancelURL  string
}

// PreapprovedPayment charges an amount against a reg key without customer interaction.
type PreapprovedPayment struct {
	RegKey      string
	ProductName string
	Amount      decimal.Decimal
	Currency    string
	OrderID     string
	Capture     bool
}

// Operation names, used for errors, metrics and logs.
const (
	OpReserve        = "reserve"
	OpPaymentDetails = "details"
	OpCheckStatus    = "status"
	OpConfirm        = "confirm"
	OpVoid           = "void"
	OpPayPreapproved = "pay"
	OpCapture        = "capture"
	OpCheckRegKey    = "checkRegKey"
	OpExpireRegKey   = "expire"
)

package payments

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is a PSP payment state normalised across providers.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Settled reports whether the PSP will not move the payment again without a new intent.
func (s Status) Settled() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusRefunded
}

// IntentRequest asks a provider to start collecting an order total.
type IntentRequest struct {
	OrderID        string
	CustomerID     string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// LookupRequest identifies a payment to inspect.
type LookupRequest struct {
	IntentID string
}

// CancelRequest releases an uncaptured payment.
type CancelRequest struct {
	IntentID       string
	Reason         string
	IdempotencyKey string
}

// PaymentDetails is what an order records about its payment. Amount is in minor units.
type PaymentDetails struct {
	Provider     string
	IntentID     string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
	CapturedAt   *time.Time
}

// Provider is implemented by each PSP adapter.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (PaymentDetails, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
	CancelPayment(ctx context.Context, req CancelRequest) (PaymentDetails, error)
}

// Currencies without a minor unit.
var zeroDecimalCurrencies = map[string]bool{"JPY": true, "KRW": true, "VND": true}

// MinorUnits converts amount into the smallest currency unit, rounding half away from zero.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

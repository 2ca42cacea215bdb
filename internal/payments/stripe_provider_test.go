package payments

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
)

type fakeIntentAPI struct {
	created  *stripe.PaymentIntentParams
	canceled *stripe.PaymentIntentCancelParams
	intent   *stripe.PaymentIntent
}

func (f *fakeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.created = params
	return f.intent, nil
}

func (f *fakeIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.intent, nil
}

func (f *fakeIntentAPI) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	f.canceled = params
	return f.intent, nil
}

func TestStripeProviderCreatePaymentIntent(t *testing.T) {
	api := &fakeIntentAPI{intent: &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
		Amount:       18900,
		Currency:     stripe.CurrencyINR,
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{intents: api})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	details, err := provider.CreatePaymentIntent(context.Background(), IntentRequest{
		OrderID:        "ord_1",
		Amount:         decimal.RequireFromString("189"),
		Currency:       "INR",
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}
	if details.IntentID != "pi_123" || details.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.Status != StatusPending || details.Currency != "INR" {
		t.Fatalf("unexpected status/currency %+v", details)
	}
	if api.created == nil || *api.created.Amount != 18900 || *api.created.Currency != "inr" {
		t.Fatalf("unexpected params %+v", api.created)
	}
	if api.created.Metadata["orderId"] != "ord_1" {
		t.Fatalf("expected order id metadata, got %v", api.created.Metadata)
	}
	if api.created.IdempotencyKey == nil || *api.created.IdempotencyKey != "idem-1" {
		t.Fatalf("expected idempotency key to be forwarded")
	}
}

func TestStripeProviderRejectsNonPositiveAmount(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{intents: &fakeIntentAPI{}})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	if _, err := provider.CreatePaymentIntent(context.Background(), IntentRequest{Amount: decimal.Zero, Currency: "INR"}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestStripePaymentDetailsStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		intent *stripe.PaymentIntent
		want   Status
	}{
		{"succeeded", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusSucceeded}, StatusSucceeded},
		{"canceled", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusCanceled}, StatusFailed},
		{"processing", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusProcessing}, StatusPending},
		{"refunded", &stripe.PaymentIntent{
			Status:       stripe.PaymentIntentStatusSucceeded,
			LatestCharge: &stripe.Charge{Amount: 100, AmountRefunded: 100, Captured: true},
		}, StatusRefunded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripePaymentDetails(tc.intent).Status; got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNewStripeProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

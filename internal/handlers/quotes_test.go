package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/platform/requestctx"
	"github.com/storefront-field/quote-api/internal/pricing"
	"github.com/storefront-field/quote-api/internal/services"
)

func sampleQuote() domain.OrderQuote {
	return domain.OrderQuote{
		Items: []domain.QuoteItem{
			{
				ProductID:          "saree-1",
				UnitPrice:          decimal.NewFromInt(100),
				EffectiveUnitPrice: decimal.NewFromInt(90),
				Quantity:           2,
				LineSubtotal:       decimal.NewFromInt(180),
				AppliedOffer: &domain.AppliedOffer{
					Key:      "FEST10",
					Name:     "Festive",
					Type:     domain.OfferTypeDiscountMin,
					Value:    "10",
					Discount: decimal.NewFromInt(20),
				},
			},
		},
		Subtotal:     decimal.NewFromInt(180),
		Tax:          decimal.NewFromInt(9),
		TaxBreakdown: domain.TaxBreakdown{CGST: decimal.RequireFromString("4.5"), SGST: decimal.RequireFromString("4.5"), IGST: decimal.Zero},
		DeliveryFee:  decimal.Zero,
		Total:        decimal.NewFromInt(189),
		Currency:     "INR",
		OfferKey:     "FEST10",
		OfferApplied: true,
		Deliverability: []domain.ItemDeliverability{
			{ProductID: "saree-1", Deliverable: true},
		},
	}
}

func quoteRouter(svc services.QuoteService) http.Handler {
	handlers := NewQuoteHandlers(svc)
	return mountRoutes(nil, "/quotes", handlers.Routes)
}

func TestQuoteHandlersCreateQuoteSuccess(t *testing.T) {
	var captured services.QuoteCommand
	svc := &stubQuoteService{
		quoteFn: func(ctx context.Context, cmd services.QuoteCommand) (domain.OrderQuote, error) {
			captured = cmd
			captured.SessionID = requestctx.SessionID(ctx)
			return sampleQuote(), nil
		},
	}

	body := `{"lines":[{"productId":" saree-1 ","quantity":2,"selectedSize":"M"}],"destination":{"state":"Maharashtra","country":"IN"},"offerKey":"FEST10"}`
	rr := serve(t, quoteRouter(svc), http.MethodPost, "/quotes", body, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.Lines) != 1 || captured.Lines[0].ProductID != "saree-1" || captured.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", captured.Lines)
	}
	if captured.Lines[0].SelectedSize != "M" {
		t.Fatalf("expected selected size passed through, got %q", captured.Lines[0].SelectedSize)
	}
	if captured.Destination == nil || captured.Destination.State != "Maharashtra" {
		t.Fatalf("expected destination, got %+v", captured.Destination)
	}
	if captured.OfferKey != "FEST10" {
		t.Fatalf("expected offer key FEST10, got %q", captured.OfferKey)
	}

	payload := decodeBody(t, rr)
	if payload["total"] != 189.0 || payload["tax"] != 9.0 || payload["subtotal"] != 180.0 {
		t.Fatalf("unexpected totals %v", payload)
	}
	breakdown, _ := payload["taxBreakdown"].(map[string]any)
	if breakdown["cgst"] != 4.5 || breakdown["sgst"] != 4.5 || breakdown["igst"] != 0.0 {
		t.Fatalf("unexpected tax breakdown %v", breakdown)
	}
	items, _ := payload["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", payload["items"])
	}
	item := items[0].(map[string]any)
	offer, _ := item["appliedOffer"].(map[string]any)
	if offer["name"] != "Festive" || offer["value"] != 10.0 {
		t.Fatalf("unexpected applied offer %v", offer)
	}
	if payload["deliverable"] != true {
		t.Fatalf("expected deliverable quote, got %v", payload["deliverable"])
	}
}

func TestQuoteHandlersOmittedDestinationIsNil(t *testing.T) {
	var captured services.QuoteCommand
	svc := &stubQuoteService{
		quoteFn: func(_ context.Context, cmd services.QuoteCommand) (domain.OrderQuote, error) {
			captured = cmd
			return domain.OrderQuote{Currency: "INR"}, nil
		},
	}

	rr := serve(t, quoteRouter(svc), http.MethodPost, "/quotes", `{"lines":[{"productId":"p1","quantity":1}]}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.Destination != nil {
		t.Fatalf("expected nil destination so the session fallback applies, got %+v", captured.Destination)
	}
	payload := decodeBody(t, rr)
	if blocked, ok := payload["blockedProductIds"].([]any); !ok || len(blocked) != 0 {
		t.Fatalf("expected empty blocked list, got %v", payload["blockedProductIds"])
	}
}

func TestQuoteHandlersRejectsMalformedBodies(t *testing.T) {
	svc := &stubQuoteService{}
	cases := map[string]string{
		"empty":         "",
		"invalid json":  "{",
		"unknown field": `{"lines":[],"coupon":"x"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := serve(t, quoteRouter(svc), http.MethodPost, "/quotes", body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if got := decodeBody(t, rr)["error"]; got != "invalid_request" {
				t.Fatalf("expected invalid_request, got %v", got)
			}
		})
	}
}

func TestQuoteHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid line", &pricing.LineItemError{ProductID: "p1", Reason: "quantity must be positive"}, http.StatusUnprocessableEntity, "invalid_line_item"},
		{"invalid input", fmt.Errorf("%w: at least one line is required", services.ErrQuoteInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"product missing", fmt.Errorf("%w: p9", services.ErrProductNotFound), http.StatusNotFound, "product_not_found"},
		{"upstream", fmt.Errorf("%w: firestore unavailable", services.ErrUpstreamDataUnavailable), http.StatusServiceUnavailable, "upstream_unavailable"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubQuoteService{
				quoteFn: func(context.Context, services.QuoteCommand) (domain.OrderQuote, error) {
					return domain.OrderQuote{}, tc.err
				},
			}
			rr := serve(t, quoteRouter(svc), http.MethodPost, "/quotes", `{"lines":[{"productId":"p1","quantity":1}]}`, nil)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if got := decodeBody(t, rr)["error"]; got != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, got)
			}
			if tc.status == http.StatusServiceUnavailable && rr.Header().Get("Retry-After") != "5" {
				t.Fatalf("expected Retry-After 5, got %q", rr.Header().Get("Retry-After"))
			}
		})
	}
}

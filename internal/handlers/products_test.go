package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/platform/auth"
	"github.com/storefront-field/quote-api/internal/pricing"
	"github.com/storefront-field/quote-api/internal/services"
)

func productRouter(identity *auth.Identity, quotes services.QuoteService, orders services.OrderService) http.Handler {
	handlers := NewProductHandlers(nil, quotes, orders)
	return mountRoutes(identity, "/products", handlers.Routes)
}

func TestProductHandlersListOffers(t *testing.T) {
	expiry := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	percent := decimal.NewFromInt(15)
	var captured services.OfferListQuery
	quotes := &stubQuoteService{
		offersFn: func(_ context.Context, query services.OfferListQuery) ([]domain.Offer, error) {
			captured = query
			return []domain.Offer{
				{Key: "FEST20", Name: "Festive", Type: domain.OfferTypeDiscountMin, Category: "sarees", Value: "20", Order: 1, ExpiryDate: &expiry},
				{Key: "PACK3", Name: "Buy 3", Type: domain.OfferTypePackMin, Value: "3 for 999", DiscountPercent: &percent, Order: 2},
			}, nil
		},
	}

	rr := serve(t, productRouter(nil, quotes, nil), http.MethodGet, "/products/saree-1/offers?category=sarees&subcategory=silk", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ProductID != "saree-1" || captured.Category != "sarees" || captured.Subcategory != "silk" {
		t.Fatalf("unexpected query %+v", captured)
	}

	body := decodeBody(t, rr)
	offers, _ := body["offers"].([]any)
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %v", body["offers"])
	}
	first := offers[0].(map[string]any)
	if first["key"] != "FEST20" || first["value"] != 20.0 || first["expiresAt"] != "2024-12-31T23:59:00Z" {
		t.Fatalf("unexpected first offer %v", first)
	}
	second := offers[1].(map[string]any)
	if second["value"] != "3 for 999" || second["discountPercent"] != 15.0 {
		t.Fatalf("unexpected second offer %v", second)
	}
}

func TestProductHandlersListOffersCategoryNotAllowed(t *testing.T) {
	quotes := &stubQuoteService{
		offersFn: func(context.Context, services.OfferListQuery) ([]domain.Offer, error) {
			return nil, fmt.Errorf("%w: toys", pricing.ErrCategoryNotAllowed)
		},
	}
	rr := serve(t, productRouter(nil, quotes, nil), http.MethodGet, "/products/p1/offers?category=toys", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "category_not_allowed" {
		t.Fatalf("expected category_not_allowed, got %v", got)
	}
}

func TestProductHandlersReviewEligibility(t *testing.T) {
	orders := &stubOrderService{
		reviewFn: func(_ context.Context, userID, productID string) (bool, error) {
			return userID == "user-1" && productID == "saree-1", nil
		},
	}

	rr := serve(t, productRouter(&auth.Identity{UID: "user-1"}, nil, orders), http.MethodGet, "/products/saree-1/review-eligibility", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["eligible"] != true || body["productId"] != "saree-1" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = serve(t, productRouter(&auth.Identity{UID: "user-2"}, nil, orders), http.MethodGet, "/products/saree-1/review-eligibility", "", nil)
	if body := decodeBody(t, rr); body["eligible"] != false {
		t.Fatalf("expected ineligible, got %v", body)
	}
}

func TestProductHandlersReviewEligibilityRequiresIdentity(t *testing.T) {
	rr := serve(t, productRouter(nil, nil, &stubOrderService{}), http.MethodGet, "/products/saree-1/review-eligibility", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

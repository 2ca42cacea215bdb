package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/platform/auth"
	"github.com/storefront-field/quote-api/internal/services"
)

type routerTokenVerifier struct {
	tokens map[string]*firebaseauth.Token
}

func (v *routerTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	if token, ok := v.tokens[idToken]; ok {
		return token, nil
	}
	return nil, errors.New("invalid token")
}

func TestNewRouter_DefaultMounts(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	healthHandlers := NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{
			report: domain.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				Uptime:      5 * time.Second,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			},
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	router := NewRouter(WithHealthHandlers(healthHandlers))

	t.Run("healthz", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/healthz", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected content-type application/json, got %s", ct)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/readyz", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("unregistered group answers not implemented", func(t *testing.T) {
		rr := serve(t, router, http.MethodPost, "/api/v1/quotes", `{}`, nil)
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("expected status 501, got %d", rr.Code)
		}
		if got := decodeBody(t, rr)["error"]; got != "not_implemented" {
			t.Fatalf("expected not_implemented, got %v", got)
		}
	})

	t.Run("non-json body rejected", func(t *testing.T) {
		rr := serve(t, router, http.MethodPost, "/api/v1/quotes", "lines=1", map[string]string{"Content-Type": "text/plain"})
		if rr.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("expected status 415, got %d", rr.Code)
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/api/v2/quotes", "", nil)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
		body := decodeBody(t, rr)
		if body["error"] != errorNotFoundCode {
			t.Fatalf("expected %s, got %v", errorNotFoundCode, body["error"])
		}
		if body["request_id"] == nil {
			t.Fatalf("expected request id in envelope")
		}
	})
}

func TestNewRouter_AuthenticatedRoutes(t *testing.T) {
	verifier := &routerTokenVerifier{tokens: map[string]*firebaseauth.Token{
		"buyer-token": {UID: "user-1", Claims: map[string]any{}},
		"staff-token": {UID: "staff-1", Claims: map[string]any{"role": "staff"}},
	}}
	authn := auth.NewAuthenticator(verifier)

	quotes := &stubQuoteService{
		quoteFn: func(context.Context, services.QuoteCommand) (domain.OrderQuote, error) {
			return sampleQuote(), nil
		},
		offersFn: func(context.Context, services.OfferListQuery) ([]domain.Offer, error) {
			return []domain.Offer{{Key: "FEST20", Value: "20"}}, nil
		},
	}
	orders := &stubOrderService{
		statusFn: func(_ context.Context, cmd services.UpdateStatusCommand) (domain.Order, error) {
			return sampleOrder(cmd.Status), nil
		},
		reviewFn: func(context.Context, string, string) (bool, error) { return true, nil },
	}

	router := NewRouter(
		WithQuoteRoutes(NewQuoteHandlers(quotes).Routes),
		WithProductRoutes(NewProductHandlers(authn, quotes, orders).Routes),
		WithOrderRoutes(NewOrderHandlers(authn, orders).Routes),
	)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		status int
	}{
		{"public quote", http.MethodPost, "/api/v1/quotes", `{"lines":[{"productId":"saree-1","quantity":1}]}`, "", http.StatusOK},
		{"public offers", http.MethodGet, "/api/v1/products/saree-1/offers", "", "", http.StatusOK},
		{"review eligibility requires auth", http.MethodGet, "/api/v1/products/saree-1/review-eligibility", "", "", http.StatusUnauthorized},
		{"review eligibility with token", http.MethodGet, "/api/v1/products/saree-1/review-eligibility", "", "buyer-token", http.StatusOK},
		{"orders require auth", http.MethodPost, "/api/v1/orders", `{"lines":[]}`, "", http.StatusUnauthorized},
		{"invalid token rejected", http.MethodGet, "/api/v1/orders/ord_1", "", "forged", http.StatusUnauthorized},
		{"buyer cannot change status", http.MethodPost, "/api/v1/orders/ord_1/status", `{"status":"shipped"}`, "buyer-token", http.StatusForbidden},
		{"staff changes status", http.MethodPost, "/api/v1/orders/ord_1/status", `{"status":"shipped"}`, "staff-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.token != "" {
				headers["Authorization"] = "Bearer " + tc.token
			}
			rr := serve(t, router, tc.method, tc.path, tc.body, headers)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestNewRouter_RateLimitCoversEveryAPIGroup(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	verifier := &routerTokenVerifier{tokens: map[string]*firebaseauth.Token{
		"buyer-token": {UID: "user-1", Claims: map[string]any{}},
	}}
	authn := auth.NewAuthenticator(verifier)
	quotes := &stubQuoteService{}
	orders := &stubOrderService{}

	router := NewRouter(
		WithRateLimit(1, time.Minute, func() time.Time { return now }),
		WithProductRoutes(NewProductHandlers(authn, quotes, orders).Routes),
		WithOrderRoutes(NewOrderHandlers(authn, orders).Routes),
	)
	buyer := map[string]string{"Authorization": "Bearer buyer-token", "X-Real-IP": "203.0.113.7"}

	rr := serve(t, router, http.MethodGet, "/api/v1/orders", "", buyer)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first order listing admitted, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, router, http.MethodGet, "/api/v1/orders", "", buyer)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on order route, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
	if got := decodeBody(t, rr)["error"]; got != rateLimitErrorCode {
		t.Fatalf("expected %s, got %v", rateLimitErrorCode, got)
	}

	rr = serve(t, router, http.MethodGet, "/api/v1/products/saree-1/offers", "", map[string]string{"X-Real-IP": "203.0.113.7"})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected product route to share the client budget, got %d", rr.Code)
	}

	rr = serve(t, router, http.MethodGet, "/api/v1/products/saree-1/offers", "", map[string]string{"X-Real-IP": "198.51.100.2"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected another client to be admitted, got %d", rr.Code)
	}

	if rr = serve(t, router, http.MethodGet, "/healthz", "", map[string]string{"X-Real-IP": "203.0.113.7"}); rr.Code != http.StatusOK {
		t.Fatalf("expected probes outside the limiter, got %d", rr.Code)
	}
}

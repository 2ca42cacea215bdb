package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/platform/auth"
	"github.com/storefront-field/quote-api/internal/services"
)

type stubQuoteService struct {
	quoteFn  func(context.Context, services.QuoteCommand) (domain.OrderQuote, error)
	offersFn func(context.Context, services.OfferListQuery) ([]domain.Offer, error)
}

func (s *stubQuoteService) Quote(ctx context.Context, cmd services.QuoteCommand) (domain.OrderQuote, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, cmd)
	}
	return domain.OrderQuote{}, errors.New("not implemented")
}

func (s *stubQuoteService) ListOffers(ctx context.Context, query services.OfferListQuery) ([]domain.Offer, error) {
	if s.offersFn != nil {
		return s.offersFn(ctx, query)
	}
	return nil, nil
}

type stubOrderService struct {
	placeFn  func(context.Context, services.PlaceOrderCommand) (services.PlaceOrderResult, error)
	getFn    func(context.Context, services.OrderQuery) (domain.Order, error)
	listFn   func(context.Context, services.ListOrdersQuery) (domain.CursorPage[domain.Order], error)
	verifyFn func(context.Context, services.VerifyPaymentCommand) (domain.Order, error)
	statusFn func(context.Context, services.UpdateStatusCommand) (domain.Order, error)
	reviewFn func(context.Context, string, string) (bool, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.PlaceOrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.OrderQuery) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (domain.Order, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateStatusCommand) (domain.Order, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) CanReview(ctx context.Context, userID, productID string) (bool, error) {
	if s.reviewFn != nil {
		return s.reviewFn(ctx, userID, productID)
	}
	return false, nil
}

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

var (
	_ services.QuoteService  = (*stubQuoteService)(nil)
	_ services.OrderService  = (*stubOrderService)(nil)
	_ services.SystemService = (*stubSystemService)(nil)
)

// withIdentity injects an authenticated caller the way the Firebase middleware would.
func withIdentity(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity != nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mountRoutes(identity *auth.Identity, prefix string, routes RouteRegistrar) chi.Router {
	router := chi.NewRouter()
	router.Use(withIdentity(identity))
	router.Route(prefix, func(r chi.Router) { routes(r) })
	return router
}

func serve(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return body
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-field/quote-api/internal/platform/auth"
	"github.com/storefront-field/quote-api/internal/platform/httpx"
	"github.com/storefront-field/quote-api/internal/services"
)

// ProductHandlers exposes product scoped endpoints: public offer listing and the
// authenticated review eligibility probe.
type ProductHandlers struct {
	authn  *auth.Authenticator
	quotes services.QuoteService
	orders services.OrderService
}

// NewProductHandlers constructs product handlers.
func NewProductHandlers(authn *auth.Authenticator, quotes services.QuoteService, orders services.OrderService) *ProductHandlers {
	return &ProductHandlers{
		authn:  authn,
		quotes: quotes,
		orders: orders,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productId}/offers", h.listOffers)
	r.Group(func(authed chi.Router) {
		if h.authn != nil {
			authed.Use(h.authn.RequireFirebaseAuth())
		}
		authed.Get("/{productId}/review-eligibility", h.reviewEligibility)
	})
}

type offerListResponse struct {
	ProductID string         `json:"productId"`
	Offers    []offerPayload `json:"offers"`
}

func (h *ProductHandlers) listOffers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_service_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	offers, err := h.quotes.ListOffers(ctx, services.OfferListQuery{
		ProductID:   productID,
		Category:    strings.TrimSpace(query.Get("category")),
		Subcategory: strings.TrimSpace(query.Get("subcategory")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, offerListResponse{
		ProductID: productID,
		Offers:    buildOfferPayloads(offers),
	})
}

type reviewEligibilityResponse struct {
	ProductID string `json:"productId"`
	Eligible  bool   `json:"eligible"`
}

func (h *ProductHandlers) reviewEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	eligible, err := h.orders.CanReview(ctx, identity.UID, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, reviewEligibilityResponse{ProductID: productID, Eligible: eligible})
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-field/quote-api/internal/platform/httpx"
	"github.com/storefront-field/quote-api/internal/platform/requestctx"
	"github.com/storefront-field/quote-api/internal/services"
)

const maxQuoteBodySize = 64 * 1024

// QuoteHandlers exposes the public cart pricing preview.
type QuoteHandlers struct {
	quotes services.QuoteService
}

// NewQuoteHandlers constructs handlers pricing carts through quotes.
func NewQuoteHandlers(quotes services.QuoteService) *QuoteHandlers {
	return &QuoteHandlers{quotes: quotes}
}

// Routes registers the /quotes endpoints.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createQuote)
}

func (h *QuoteHandlers) createQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_service_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if !decodeJSONBody(w, r, &req, maxQuoteBodySize) {
		return
	}

	quote, err := h.quotes.Quote(ctx, services.QuoteCommand{
		Lines:       req.lineInputs(),
		Destination: req.destination(),
		OfferKey:    strings.TrimSpace(req.OfferKey),
		SessionID:   requestctx.SessionID(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, buildQuotePayload(quote))
}

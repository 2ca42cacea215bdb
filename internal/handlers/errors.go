package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/storefront-field/quote-api/internal/platform/httpx"
	"github.com/storefront-field/quote-api/internal/platform/observability"
	"github.com/storefront-field/quote-api/internal/pricing"
	"github.com/storefront-field/quote-api/internal/services"
)

const upstreamRetryAfter = 5 * time.Second

// writeServiceError maps quote, order and pricing errors onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var undeliverable *pricing.UndeliverableError
	var lineErr *pricing.LineItemError

	switch {
	case errors.As(err, &undeliverable):
		httpx.WriteError(ctx, w, httpx.NewError("destination_undeliverable", "some items cannot ship to the destination", http.StatusConflict).
			WithDetails(map[string]any{
				"blocked_product_ids": undeliverable.ProductIDs,
				"state":               undeliverable.State,
			}))
	case errors.As(err, &lineErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_line_item", lineErr.Error(), http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"product_id": lineErr.ProductID}))
	case errors.Is(err, pricing.ErrInvalidLineItem), errors.Is(err, pricing.ErrInvalidTaxInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_line_item", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, pricing.ErrCategoryNotAllowed):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_allowed", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrQuoteInvalidInput), errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrUpstreamDataUnavailable):
		observability.FromContext(ctx).Warn("upstream data unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("upstream_unavailable", "catalog data is temporarily unavailable", http.StatusServiceUnavailable).
			WithRetryAfter(upstreamRetryAfter))
	case errors.Is(err, services.ErrPaymentUnavailable):
		observability.FromContext(ctx).Warn("payment provider unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment provider is temporarily unavailable", http.StatusBadGateway).
			WithRetryAfter(upstreamRetryAfter))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("deadline_exceeded", "request timed out", http.StatusGatewayTimeout))
	default:
		observability.FromContext(ctx).Error("request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/platform/auth"
	"github.com/storefront-field/quote-api/internal/platform/httpx"
	"github.com/storefront-field/quote-api/internal/platform/pagination"
	"github.com/storefront-field/quote-api/internal/platform/requestctx"
	"github.com/storefront-field/quote-api/internal/services"
)

const (
	maxOrderBodySize       = 64 * 1024
	maxOrderStatusBodySize = 4 * 1024
	idempotencyKeyHeader   = "Idempotency-Key"
	replayedHeader         = "Idempotent-Replayed"
)

type placeOrderRequest struct {
	quoteRequest
	DryRun *bool `json:"dryRun,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type placeOrderResponse struct {
	DryRun   bool          `json:"dryRun"`
	Replayed bool          `json:"replayed,omitempty"`
	Quote    quotePayload  `json:"quote"`
	Order    *orderPayload `json:"order,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// OrderHandlers exposes order placement and lifecycle endpoints for authenticated callers.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(buyer chi.Router) {
		if h.authn != nil {
			buyer.Use(h.authn.RequireFirebaseAuth())
		}
		buyer.Get("/", h.listOrders)
		buyer.Post("/", h.placeOrder)
		buyer.Get("/{orderId}", h.getOrder)
		buyer.Post("/{orderId}/payment:verify", h.verifyPayment)
	})
	r.Group(func(staff chi.Router) {
		if h.authn != nil {
			staff.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		staff.Post("/{orderId}/status", h.updateStatus)
	})
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	dryRun, valid := parseBoolFlag(r.URL.Query().Get("dryRun"))
	if !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "dryRun must be a boolean", http.StatusBadRequest))
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(w, r, &req, maxOrderBodySize) {
		return
	}
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	result, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID:         identity.UID,
		Lines:          req.lineInputs(),
		Destination:    req.destination(),
		OfferKey:       strings.TrimSpace(req.OfferKey),
		SessionID:      requestctx.SessionID(ctx),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
		DryRun:         dryRun,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	response := placeOrderResponse{
		DryRun:   result.DryRun,
		Replayed: result.Replayed,
		Quote:    buildQuotePayload(result.Quote),
	}
	status := http.StatusOK
	if result.Order != nil {
		order := buildOrderPayload(*result.Order, true)
		response.Order = &order
		if result.Replayed {
			w.Header().Set(replayedHeader, "true")
		} else {
			status = http.StatusCreated
		}
		w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+result.Order.ID)
	}
	httpx.WriteJSON(w, status, response)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var statuses []domain.OrderStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(part)))
			if status == "" {
				continue
			}
			if !status.Valid() {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is not a known order status", http.StatusBadRequest))
				return
			}
			statuses = append(statuses, status)
		}
	}

	page, err := h.orders.ListOrders(ctx, services.ListOrdersQuery{
		UserID: identity.UID,
		Status: statuses,
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order, false))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.OrderQuery{
		OrderID: orderID,
		ActorID: identity.UID,
		Staff:   identity.IsStaff(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, order.UserID == identity.UID)})
}

func (h *OrderHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.VerifyPayment(ctx, services.VerifyPaymentCommand{
		OrderID: orderID,
		ActorID: identity.UID,
		Staff:   identity.IsStaff(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, false)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !identity.IsStaff() {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "staff role required", http.StatusForbidden))
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeJSONBody(w, r, &req, maxOrderStatusBodySize) {
		return
	}
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is not a known order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
		OrderID: orderID,
		Status:  status,
		ActorID: identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, false)})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

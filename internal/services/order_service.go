package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/payments"
	"github.com/storefront-field/quote-api/internal/platform/pagination"
	"github.com/storefront-field/quote-api/internal/pricing"
	"github.com/storefront-field/quote-api/internal/repositories"
)

const (
	orderEventPlaced        = "order.placed"
	orderEventStatusChanged = "order.status_changed"

	orderIDPrefix        = "ord_"
	maxIdempotencyKeyLen = 128
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located for the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent write or a reused idempotency key.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrPaymentUnavailable indicates the payment provider could not be reached.
	ErrPaymentUnavailable = errors.New("order: payment provider unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Quotes      QuoteService
	Payments    PaymentGateway
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	quotes   QuoteService
	payments PaymentGateway
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Quotes == nil {
		return nil, errors.New("order service: quote service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		quotes:   deps.Quotes,
		payments: deps.Payments,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	key := strings.TrimSpace(cmd.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return PlaceOrderResult{}, fmt.Errorf("%w: idempotency key exceeds %d characters", ErrOrderInvalidInput, maxIdempotencyKeyLen)
	}

	if !cmd.DryRun && key != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, userID, key)
		switch {
		case err == nil:
			return PlaceOrderResult{Quote: existing.Quote, Order: &existing, Replayed: true}, nil
		case !isNotFound(err):
			return PlaceOrderResult{}, s.mapRepositoryError(err)
		}
	}

	quote, err := s.quotes.Quote(ctx, QuoteCommand{
		Lines:       cmd.Lines,
		Destination: cmd.Destination,
		OfferKey:    cmd.OfferKey,
		SessionID:   cmd.SessionID,
	})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if cmd.DryRun {
		return PlaceOrderResult{Quote: quote, DryRun: true}, nil
	}

	if cmd.Destination == nil || strings.TrimSpace(cmd.Destination.State) == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: destination state is required to place an order", ErrOrderInvalidInput)
	}
	if !quote.Deliverable() {
		return PlaceOrderResult{}, &pricing.UndeliverableError{
			State:      strings.TrimSpace(cmd.Destination.State),
			ProductIDs: append([]string(nil), quote.BlockedProductIDs...),
		}
	}

	now := s.clock()
	order := domain.Order{
		ID:     orderIDPrefix + s.newID(),
		UserID: userID,
		Status: domain.OrderStatusPending,
		Destination: domain.Destination{
			State:   strings.TrimSpace(cmd.Destination.State),
			Country: strings.ToUpper(strings.TrimSpace(cmd.Destination.Country)),
		},
		Lines:          cartLinesFromQuote(cmd.Lines, quote),
		Quote:          quote,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if s.payments != nil && quote.Total.IsPositive() {
		paymentKey := key
		if paymentKey != "" {
			paymentKey = userID + ":" + paymentKey
		} else {
			paymentKey = order.ID
		}
		details, err := s.payments.CreatePaymentIntent(ctx, payments.PaymentContext{Currency: quote.Currency}, payments.IntentRequest{
			OrderID:        order.ID,
			Amount:         quote.Total,
			Currency:       quote.Currency,
			IdempotencyKey: paymentKey,
			Metadata:       map[string]string{"userId": userID},
		})
		if err != nil {
			s.logger(ctx, "order.payment.create_failed", map[string]any{"order": order.ID, "error": err.Error()})
			return PlaceOrderResult{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
		}
		order.Payment = &domain.OrderPayment{
			Provider:     details.Provider,
			IntentID:     details.IntentID,
			ClientSecret: details.ClientSecret,
			Status:       string(details.Status),
			UpdatedAt:    now,
		}
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		mapped := s.mapRepositoryError(err)
		if key != "" && errors.Is(mapped, ErrOrderConflict) {
			// A concurrent request with the same key won; replay its order.
			if existing, findErr := s.orders.FindByIdempotencyKey(ctx, userID, key); findErr == nil {
				return PlaceOrderResult{Quote: existing.Quote, Order: &existing, Replayed: true}, nil
			}
		}
		s.releasePayment(ctx, order)
		return PlaceOrderResult{}, mapped
	}

	metadata := map[string]any{
		"total":    quote.Total.StringFixed(2),
		"currency": quote.Currency,
		"items":    len(quote.Items),
	}
	if quote.OfferApplied {
		metadata["offerKey"] = quote.OfferKey
	}
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPlaced,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata:      metadata,
	})

	return PlaceOrderResult{Quote: quote, Order: &order}, nil
}

func (s *orderService) GetOrder(ctx context.Context, query OrderQuery) (domain.Order, error) {
	return s.loadForActor(ctx, query.OrderID, query.ActorID, query.Staff)
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[domain.Order], error) {
	userID := strings.TrimSpace(query.UserID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	for _, status := range query.Status {
		if !status.Valid() {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	pageSize := query.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	filter := repositories.OrderListFilter{Status: query.Status, Limit: pageSize + 1}
	if token := strings.TrimSpace(query.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		filter.After = &repositories.OrderCursor{CreatedAt: cursor.CreatedAt, OrderID: cursor.ID}
	}

	orders, err := s.orders.ListByUser(ctx, userID, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}

	page := domain.CursorPage[domain.Order]{Items: orders}
	if len(orders) > pageSize {
		page.Items = orders[:pageSize]
		last := page.Items[pageSize-1]
		next, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = next
	}
	return page, nil
}

func (s *orderService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error) {
	order, err := s.loadForActor(ctx, cmd.OrderID, cmd.ActorID, cmd.Staff)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		if order.Status == domain.OrderStatusConfirmed {
			return order, nil
		}
		return domain.Order{}, fmt.Errorf("%w: order is %s", ErrOrderInvalidState, order.Status)
	}

	now := s.clock()
	next := domain.OrderStatusPending
	switch {
	case order.Payment == nil && !order.Quote.Total.IsPositive():
		next = domain.OrderStatusConfirmed
	case order.Payment == nil || s.payments == nil:
		return domain.Order{}, fmt.Errorf("%w: order has no payment to verify", ErrOrderInvalidState)
	default:
		details, err := s.payments.LookupPayment(ctx, payments.PaymentContext{PreferredProvider: order.Payment.Provider}, payments.LookupRequest{IntentID: order.Payment.IntentID})
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
		}
		order.Payment.Status = string(details.Status)
		order.Payment.UpdatedAt = now
		switch details.Status {
		case payments.StatusSucceeded:
			next = domain.OrderStatusConfirmed
		case payments.StatusFailed:
			next = domain.OrderStatusCancelled
		}
	}

	previous := order.Status
	if next != previous {
		s.applyStatus(&order, next, now)
	}
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if next != previous {
		s.publishStatusChange(ctx, order, previous, cmd.ActorID, "payment_verified")
	}
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	next := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	if !next.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	previous := order.Status
	if !previous.CanTransitionTo(next) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, previous, next)
	}

	now := s.clock()
	s.applyStatus(&order, next, now)
	order.UpdatedAt = now
	if next == domain.OrderStatusCancelled {
		s.releasePayment(ctx, order)
	}
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	s.publishStatusChange(ctx, order, previous, cmd.ActorID, strings.TrimSpace(cmd.Reason))
	return order, nil
}

func (s *orderService) CanReview(ctx context.Context, userID, productID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return false, fmt.Errorf("%w: user id and product id are required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByUser(ctx, userID, repositories.OrderListFilter{
		Status:    []domain.OrderStatus{domain.OrderStatusDelivered},
		ProductID: productID,
		Limit:     1,
	})
	if err != nil {
		return false, s.mapRepositoryError(err)
	}
	for _, order := range orders {
		if order.Status == domain.OrderStatusDelivered && order.ContainsProduct(productID) {
			return true, nil
		}
	}
	return false, nil
}

// loadForActor hides orders owned by other users behind ErrOrderNotFound unless the actor is staff.
func (s *orderService) loadForActor(ctx context.Context, orderID, actorID string, staff bool) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !staff && order.UserID != strings.TrimSpace(actorID) {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) applyStatus(order *domain.Order, next domain.OrderStatus, now time.Time) {
	order.Status = next
	switch next {
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	}
}

// releasePayment cancels an uncaptured payment. Failures are logged; reconciliation happens at the PSP.
func (s *orderService) releasePayment(ctx context.Context, order domain.Order) {
	if s.payments == nil || order.Payment == nil || order.Payment.IntentID == "" {
		return
	}
	if payments.Status(order.Payment.Status).Settled() {
		return
	}
	if _, err := s.payments.CancelPayment(ctx, payments.PaymentContext{PreferredProvider: order.Payment.Provider}, payments.CancelRequest{
		IntentID: order.Payment.IntentID,
		Reason:   "abandoned",
	}); err != nil {
		s.logger(ctx, "order.payment.cancel_failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return
	}
	order.Payment.Status = string(payments.StatusFailed)
}

func (s *orderService) publishStatusChange(ctx context.Context, order domain.Order, previous domain.OrderStatus, actorID, reason string) {
	var metadata map[string]any
	if reason != "" {
		metadata = map[string]any{"reason": reason}
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(actorID),
		OccurredAt:     order.UpdatedAt,
		Metadata:       metadata,
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUpstreamDataUnavailable, err)
		}
	}

	return err
}

// cartLinesFromQuote records the submitted lines with the unit prices they were quoted at.
func cartLinesFromQuote(inputs []QuoteLineInput, quote domain.OrderQuote) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(inputs))
	for i, input := range inputs {
		line := domain.CartLine{
			ProductID:       strings.TrimSpace(input.ProductID),
			Quantity:        input.Quantity,
			AppliedOfferRef: strings.TrimSpace(input.AppliedOfferRef),
			SelectedSize:    strings.TrimSpace(input.SelectedSize),
			SelectedColor:   strings.TrimSpace(input.SelectedColor),
		}
		if i < len(quote.Items) {
			line.UnitPrice = quote.Items[i].UnitPrice
		}
		lines = append(lines, line)
	}
	return lines
}

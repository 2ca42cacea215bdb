package services

import (
	"context"
	"time"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/payments"
)

// QuoteService prices carts against the current catalog snapshot.
type QuoteService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (domain.OrderQuote, error)
	ListOffers(ctx context.Context, query OfferListQuery) ([]domain.Offer, error)
}

// OrderService turns quotes into orders and owns their lifecycle.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
	GetOrder(ctx context.Context, query OrderQuery) (domain.Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[domain.Order], error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error)
	CanReview(ctx context.Context, userID, productID string) (bool, error)
}

// SystemService exposes service metadata and dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// DestinationStore remembers the last destination used by a buyer session.
// Load fails with a not-found repository error when nothing is stored.
type DestinationStore interface {
	Load(ctx context.Context, sessionID string) (domain.Destination, error)
	Save(ctx context.Context, sessionID string, destination domain.Destination) error
}

// PaymentGateway initiates and inspects PSP payments.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.PaymentDetails, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
	CancelPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CancelRequest) (payments.PaymentDetails, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	UserID         string         `json:"userId"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// QuoteLineInput is a cart line as submitted by a buyer. Unit prices always come from the catalog.
type QuoteLineInput struct {
	ProductID       string
	Quantity        int
	AppliedOfferRef string
	SelectedSize    string
	SelectedColor   string
}

// QuoteCommand requests a quote. A nil Destination falls back to the one stored for SessionID.
type QuoteCommand struct {
	Lines       []QuoteLineInput
	Destination *domain.Destination
	OfferKey    string
	SessionID   string
}

// OfferListQuery lists offers applicable to a product, optionally filtered by category.
type OfferListQuery struct {
	ProductID   string
	Category    string
	Subcategory string
}

// PlaceOrderCommand places an order, or only previews its quote when DryRun is set.
type PlaceOrderCommand struct {
	UserID         string
	Lines          []QuoteLineInput
	Destination    *domain.Destination
	OfferKey       string
	SessionID      string
	IdempotencyKey string
	DryRun         bool
}

// PlaceOrderResult carries the quote and, for real placements, the persisted order.
type PlaceOrderResult struct {
	Quote    domain.OrderQuote
	Order    *domain.Order
	DryRun   bool
	Replayed bool
}

// OrderQuery loads an order on behalf of an actor.
type OrderQuery struct {
	OrderID string
	ActorID string
	// Staff actors may read any order; others only their own.
	Staff bool
}

// ListOrdersQuery pages through a buyer's own orders, newest first.
type ListOrdersQuery struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// VerifyPaymentCommand reconciles an order with its PSP payment.
type VerifyPaymentCommand struct {
	OrderID string
	ActorID string
	Staff   bool
}

// UpdateStatusCommand moves an order to a new lifecycle status.
type UpdateStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
	ActorID string
	Reason  string
}

package repositories

import (
	"context"
	"time"

	domain "github.com/storefront-field/quote-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Offers() OfferRepository
	Products() ProductRepository
	Sellers() SellerRepository
	Orders() OrderRepository
	Destinations() DestinationRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OfferRepository reads CMS-managed offers. Offers are never written by this service.
type OfferRepository interface {
	// FindByKey returns the offer regardless of its active flag or expiry; callers decide availability.
	FindByKey(ctx context.Context, key string) (domain.Offer, error)
	// ListActive returns offers flagged active, ordered by priority.
	ListActive(ctx context.Context) ([]domain.Offer, error)
}

// ProductRepository reads the catalog snapshot used for pricing.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// FindByIDs returns the products that exist, keyed by id. Missing ids are omitted.
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// SellerRepository reads seller profiles.
type SellerRepository interface {
	// FindByIDs returns the sellers that exist, keyed by id. Missing ids are omitted.
	FindByIDs(ctx context.Context, sellerIDs []string) (map[string]domain.SellerProfile, error)
}

// OrderRepository persists orders placed from quotes.
type OrderRepository interface {
	// Insert stores a new order. When the order carries an idempotency key, the key is claimed in the
	// same write and a second insert with the same user and key fails with a conflict.
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) ([]domain.Order, error)
}

// OrderListFilter narrows ListByUser results.
type OrderListFilter struct {
	Status []domain.OrderStatus
	// ProductID keeps only orders whose quote contains the product.
	ProductID string
	Limit     int
	// After resumes a newest-first listing strictly after the given order.
	After *OrderCursor
}

// OrderCursor is the sort key of an order in ListByUser results.
type OrderCursor struct {
	CreatedAt time.Time
	OrderID   string
}

// DestinationRepository remembers the last destination a buyer session used.
type DestinationRepository interface {
	Load(ctx context.Context, sessionID string) (domain.Destination, error)
	Save(ctx context.Context, sessionID string, destination domain.Destination) error
}

// HealthRepository probes backing dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

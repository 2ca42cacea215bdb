package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/repositories"
)

// Error satisfies repositories.RepositoryError for the in-memory store.
type Error struct {
	op          string
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string       { return e.op + ": " + e.msg }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return e.unavailable }

func notFound(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), notFound: true}
}

func conflict(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), conflict: true}
}

// Store is a concurrency-safe in-memory repositories.Registry for tests and local runs.
type Store struct {
	mu           sync.RWMutex
	offers       map[string]domain.Offer
	products     map[string]domain.Product
	sellers      map[string]domain.SellerProfile
	orders       map[string]domain.Order
	orderKeys    map[string]string
	destinations map[string]domain.Destination
	unavailable  bool
}

var _ repositories.Registry = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		offers:       make(map[string]domain.Offer),
		products:     make(map[string]domain.Product),
		sellers:      make(map[string]domain.SellerProfile),
		orders:       make(map[string]domain.Order),
		orderKeys:    make(map[string]string),
		destinations: make(map[string]domain.Destination),
	}
}

// PutOffer seeds an offer.
func (s *Store) PutOffer(offer domain.Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[offer.Key] = offer
}

// PutProduct seeds a product.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// PutSeller seeds a seller profile.
func (s *Store) PutSeller(seller domain.SellerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellers[seller.ID] = seller
}

// SetUnavailable makes every call fail with a retryable error until reset.
func (s *Store) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = unavailable
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Offers() repositories.OfferRepository { return offerRepository{s} }

func (s *Store) Products() repositories.ProductRepository { return productRepository{s} }

func (s *Store) Sellers() repositories.SellerRepository { return sellerRepository{s} }

func (s *Store) Orders() repositories.OrderRepository { return orderRepository{s} }

func (s *Store) Destinations() repositories.DestinationRepository { return destinationRepository{s} }

func (s *Store) Health() repositories.HealthRepository { return healthRepository{s} }

// checkAvailable must be called with mu held.
func (s *Store) checkAvailable(op string) error {
	if s.unavailable {
		return &Error{op: op, msg: "backend unavailable", unavailable: true}
	}
	return nil
}

type offerRepository struct{ s *Store }

func (r offerRepository) FindByKey(_ context.Context, key string) (domain.Offer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.checkAvailable("offers.get"); err != nil {
		return domain.Offer{}, err
	}
	offer, ok := r.s.offers[strings.TrimSpace(key)]
	if !ok {
		return domain.Offer{}, notFound("offers.get", "offer %q not found", key)
	}
	return offer, nil
}

func (r offerRepository) ListActive(context.Context) ([]domain.Offer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.checkAvailable("offers.query"); err != nil {
		return nil, err
	}
	offers := make([]domain.Offer, 0, len(r.s.offers))
	for _, offer := range r.s.offers {
		if offer.Active {
			offers = append(offers, offer)
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		if offers[i].Order != offers[j].Order {
			return offers[i].Order < offers[j].Order
		}
		return offers[i].Key < offers[j].Key
	})
	return offers, nil
}

type productRepository struct{ s *Store }

func (r productRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.checkAvailable("products.get"); err != nil {
		return domain.Product{}, err
	}
	product, ok := r.s.products[strings.TrimSpace(productID)]
	if !ok {
		return domain.Product{}, notFound("products.get", "product %q not found", productID)
	}
	return product, nil
}

func (r productRepository) FindByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.checkAvailable("products.getAll"); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := r.s.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

type sellerRepository struct{ s *Store }

func (r sellerRepository) FindByIDs(_ context.Context, sellerIDs []string) (map[string]domain.SellerProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.checkAvailable("sellers.getAll"); err != nil {
		return nil, err
	}
	out := make(map[string]domain.SellerProfile, len(sellerIDs))
	for _, id := range sellerIDs {
		if seller, ok := r.s.sellers[id]; ok {
			out[id] = seller
		}
	}
	return out, nil
}

type orderRepository struct{ s *Store }

func orderKey(userID, key string) string {
	return strings.TrimSpace(userID) + "\x00" + strings.TrimSpace(key)
}

func (r orderRepository) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.checkAvailable("orders.insert"); err != nil {
		return err
	}
	if _, exists := r.s.orders[order.ID]; exists {
		return conflict("orders.insert", "order %s already exists", order.ID)
	}
	if key := strings.TrimSpace(order.IdempotencyKey); key != "" {
		composite := orderKey(order.UserID, key)
		if existing, claimed := r.s.orderKeys[composite]; claimed {
			return conflict("orders.insert", "idempotency key already used by order %s", existing)
		}
		r.s.orderKeys[composite] = order.ID
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepository) Update(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.checkAvailable("orders.update"); err != nil {
		return err
	}
	if _, exists := r.s.orders[order.ID]; !exists {
		return notFound("orders.update", "order %s not found", order.ID)
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.checkAvailable("orders.get"); err != nil {
		return domain.Order{}, err
	}
	order, ok := r.s.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFound("orders.get", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (r orderRepository) FindByIdempotencyKey(_ context.Context, userID, key string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.checkAvailable("orders.byIdempotencyKey"); err != nil {
		return domain.Order{}, err
	}
	id, ok := r.s.orderKeys[orderKey(userID, key)]
	if !ok {
		return domain.Order{}, notFound("orders.byIdempotencyKey", "no order for key %q", key)
	}
	return cloneOrder(r.s.orders[id]), nil
}

func (r orderRepository) ListByUser(_ context.Context, userID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.checkAvailable("orders.query"); err != nil {
		return nil, err
	}
	var out []domain.Order
	for _, order := range r.s.orders {
		if order.UserID != userID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, order.Status) {
			continue
		}
		if filter.ProductID != "" && !order.ContainsProduct(filter.ProductID) {
			continue
		}
		if after := filter.After; after != nil && !orderSortsAfter(order, *after) {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type destinationRepository struct{ s *Store }

func (r destinationRepository) Load(_ context.Context, sessionID string) (domain.Destination, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.checkAvailable("destinations.get"); err != nil {
		return domain.Destination{}, err
	}
	dest, ok := r.s.destinations[strings.TrimSpace(sessionID)]
	if !ok {
		return domain.Destination{}, notFound("destinations.get", "no destination for session")
	}
	return dest, nil
}

func (r destinationRepository) Save(_ context.Context, sessionID string, destination domain.Destination) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.checkAvailable("destinations.set"); err != nil {
		return err
	}
	r.s.destinations[strings.TrimSpace(sessionID)] = domain.Destination{
		State:   strings.TrimSpace(destination.State),
		Country: strings.ToUpper(strings.TrimSpace(destination.Country)),
	}
	return nil
}

type healthRepository struct{ s *Store }

func (r healthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	check := domain.SystemHealthCheck{Status: domain.HealthStatusOK, Critical: true, Detail: "ok"}
	status := domain.HealthStatusOK
	if r.s.unavailable {
		check = domain.SystemHealthCheck{Status: domain.HealthStatusError, Critical: true, Detail: "unavailable", Error: "backend unavailable"}
		status = domain.HealthStatusError
	}
	return domain.SystemHealthReport{
		Status: status,
		Checks: map[string]domain.SystemHealthCheck{"memory": check},
	}, nil
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func cloneOrder(order domain.Order) domain.Order {
	order.Lines = append([]domain.CartLine(nil), order.Lines...)
	order.Quote.Items = append([]domain.QuoteItem(nil), order.Quote.Items...)
	order.Quote.Deliverability = append([]domain.ItemDeliverability(nil), order.Quote.Deliverability...)
	order.Quote.BlockedProductIDs = append([]string(nil), order.Quote.BlockedProductIDs...)
	if order.Payment != nil {
		payment := *order.Payment
		order.Payment = &payment
	}
	return order
}

// orderSortsAfter reports whether order comes after cursor in newest-first order.
func orderSortsAfter(order domain.Order, cursor repositories.OrderCursor) bool {
	if !order.CreatedAt.Equal(cursor.CreatedAt) {
		return order.CreatedAt.Before(cursor.CreatedAt)
	}
	return order.ID < cursor.OrderID
}

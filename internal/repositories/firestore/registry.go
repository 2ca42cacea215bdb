package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/storefront-field/quote-api/internal/platform/firestore"
	"github.com/storefront-field/quote-api/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider     *pfirestore.Provider
	offers       *OfferRepository
	products     *ProductRepository
	sellers      *SellerRepository
	orders       *OrderRepository
	destinations *DestinationRepository
	health       repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on provider. Extra dependency checks are probed by Health
// alongside Firestore itself.
func NewRegistry(provider *pfirestore.Provider, checks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	offers, err := NewOfferRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	sellers, err := NewSellerRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	destinations, err := NewDestinationRepository(provider)
	if err != nil {
		return nil, err
	}

	all := append([]repositories.DependencyCheck{{Name: "firestore", Critical: true, Check: provider.Ping}}, checks...)
	health, err := repositories.NewDependencyHealthRepository(all)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:     provider,
		offers:       offers,
		products:     products,
		sellers:      sellers,
		orders:       orders,
		destinations: destinations,
		health:       health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }
func (r *Registry) Offers() repositories.OfferRepository { return r.offers }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Sellers() repositories.SellerRepository { return r.sellers }
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) Destinations() repositories.DestinationRepository { return r.destinations }
func (r *Registry) Health() repositories.HealthRepository { return r.health }

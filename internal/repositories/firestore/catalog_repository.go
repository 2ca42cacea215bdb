package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/storefront-field/quote-api/internal/domain"
	pfirestore "github.com/storefront-field/quote-api/internal/platform/firestore"
	"github.com/storefront-field/quote-api/internal/repositories"
)

const (
	productsCollection = "products"
	sellersCollection  = "sellers"
)

// ProductRepository reads catalog products.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

// FindByID loads one product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data)
}

// FindByIDs batch-loads products.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	docs, err := r.base.GetAll(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	products := make(map[string]domain.Product, len(docs))
	for id, doc := range docs {
		product, err := decodeProductDocument(id, doc.Data)
		if err != nil {
			return nil, err
		}
		products[id] = product
	}
	return products, nil
}

type productDocument struct {
	Name        string `firestore:"name"`
	Category    string `firestore:"category"`
	Subcategory string `firestore:"subcategory,omitempty"`
	SellerID    string `firestore:"sellerId"`
	Price       string `firestore:"price"`
	TaxCategory string `firestore:"taxCategory,omitempty"`
	Active      bool   `firestore:"active"`
}

func decodeProductDocument(id string, doc productDocument) (domain.Product, error) {
	price, err := decodeDecimal("products."+id+".price", doc.Price)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:          id,
		Name:        doc.Name,
		Category:    doc.Category,
		Subcategory: doc.Subcategory,
		SellerID:    doc.SellerID,
		Price:       price,
		TaxCategory: doc.TaxCategory,
		Active:      doc.Active,
	}, nil
}

// SellerRepository reads seller profiles.
type SellerRepository struct {
	base *pfirestore.BaseRepository[sellerDocument]
}

var _ repositories.SellerRepository = (*SellerRepository)(nil)

// NewSellerRepository constructs a Firestore-backed seller repository.
func NewSellerRepository(provider *pfirestore.Provider) (*SellerRepository, error) {
	if provider == nil {
		return nil, errors.New("seller repository requires firestore provider")
	}
	return &SellerRepository{
		base: pfirestore.NewBaseRepository[sellerDocument](provider, sellersCollection, nil),
	}, nil
}

// FindByIDs batch-loads sellers.
func (r *SellerRepository) FindByIDs(ctx context.Context, sellerIDs []string) (map[string]domain.SellerProfile, error) {
	docs, err := r.base.GetAll(ctx, sellerIDs)
	if err != nil {
		return nil, err
	}
	sellers := make(map[string]domain.SellerProfile, len(docs))
	for id, doc := range docs {
		sellers[id] = domain.SellerProfile{
			ID:                 id,
			Name:               doc.Data.Name,
			State:              doc.Data.State,
			HasGST:             doc.Data.HasGST,
			ServiceableRegions: append([]string(nil), doc.Data.ServiceableRegions...),
		}
	}
	return sellers, nil
}

type sellerDocument struct {
	Name               string   `firestore:"name"`
	State              string   `firestore:"state"`
	HasGST             bool     `firestore:"hasGst"`
	ServiceableRegions []string `firestore:"serviceableRegions,omitempty"`
}

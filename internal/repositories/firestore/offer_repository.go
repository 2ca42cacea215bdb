package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront-field/quote-api/internal/domain"
	pfirestore "github.com/storefront-field/quote-api/internal/platform/firestore"
	"github.com/storefront-field/quote-api/internal/repositories"
)

const offersCollection = "offers"

// OfferRepository reads offers from the CMS-managed offers collection, keyed by offer key.
type OfferRepository struct {
	base *pfirestore.BaseRepository[offerDocument]
}

var _ repositories.OfferRepository = (*OfferRepository)(nil)

// NewOfferRepository constructs a Firestore-backed offer repository.
func NewOfferRepository(provider *pfirestore.Provider) (*OfferRepository, error) {
	if provider == nil {
		return nil, errors.New("offer repository requires firestore provider")
	}
	return &OfferRepository{
		base: pfirestore.NewBaseRepository[offerDocument](provider, offersCollection, nil),
	}, nil
}

// FindByKey loads a single offer.
func (r *OfferRepository) FindByKey(ctx context.Context, key string) (domain.Offer, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(key))
	if err != nil {
		return domain.Offer{}, err
	}
	return decodeOfferDocument(doc.ID, doc.Data)
}

// ListActive returns active offers ordered by priority, then key.
func (r *OfferRepository) ListActive(ctx context.Context) ([]domain.Offer, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).OrderBy("order", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	offers := make([]domain.Offer, 0, len(docs))
	for _, doc := range docs {
		offer, err := decodeOfferDocument(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

type offerDocument struct {
	Name            string     `firestore:"name"`
	Type            string     `firestore:"type"`
	Category        string     `firestore:"category,omitempty"`
	Subcategory     string     `firestore:"subcategory,omitempty"`
	ProductIDs      []string   `firestore:"productIds,omitempty"`
	Value           string     `firestore:"value"`
	DiscountPercent *string    `firestore:"discountPercent,omitempty"`
	Active          bool       `firestore:"active"`
	ExpiryDate      *time.Time `firestore:"expiryDate,omitempty"`
	Order           int        `firestore:"order"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

func decodeOfferDocument(key string, doc offerDocument) (domain.Offer, error) {
	percent, err := decodeDecimalPtr("offers."+key+".discountPercent", doc.DiscountPercent)
	if err != nil {
		return domain.Offer{}, err
	}
	offer := domain.Offer{
		Key:             key,
		Name:            doc.Name,
		Type:            domain.OfferType(strings.ToLower(strings.TrimSpace(doc.Type))),
		Category:        doc.Category,
		Subcategory:     doc.Subcategory,
		ProductIDs:      append([]string(nil), doc.ProductIDs...),
		Value:           doc.Value,
		DiscountPercent: percent,
		Active:          doc.Active,
		Order:           doc.Order,
		UpdatedAt:       doc.UpdatedAt.UTC(),
	}
	if doc.ExpiryDate != nil {
		expiry := doc.ExpiryDate.UTC()
		offer.ExpiryDate = &expiry
	}
	return offer, nil
}

package pricing

import (
	"sort"
	"strings"
	"time"

	"github.com/storefront-field/quote-api/internal/domain"
)

// OfferCatalog is a read-only snapshot of offers keyed by offer key.
type OfferCatalog map[string]domain.Offer

// NewOfferCatalog indexes offers by their trimmed key. Later duplicates overwrite earlier ones.
func NewOfferCatalog(offers ...domain.Offer) OfferCatalog {
	catalog := make(OfferCatalog, len(offers))
	for _, offer := range offers {
		key := strings.TrimSpace(offer.Key)
		if key == "" {
			continue
		}
		catalog[key] = offer
	}
	return catalog
}

// Resolve returns the offer for key when it exists, is active and has not expired at now.
func (c OfferCatalog) Resolve(key string, now time.Time) (domain.Offer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Offer{}, ErrOfferUnavailable
	}
	offer, ok := c[key]
	if !ok || !OfferAvailable(offer, now) {
		return domain.Offer{}, ErrOfferUnavailable
	}
	return offer, nil
}

// OfferAvailable reports whether the offer is active and its expiry is strictly after now.
func OfferAvailable(offer domain.Offer, now time.Time) bool {
	if !offer.Active {
		return false
	}
	if offer.ExpiryDate != nil && !offer.ExpiryDate.After(now) {
		return false
	}
	return true
}

// MatchOffer reports whether every scope constraint set on the offer is satisfied by the product.
// Category, subcategory and product list constraints are ANDed; unset constraints always pass.
func MatchOffer(offer domain.Offer, product domain.Product) bool {
	if category := strings.TrimSpace(offer.Category); category != "" {
		if !strings.EqualFold(category, strings.TrimSpace(product.Category)) {
			return false
		}
	}
	if subcategory := strings.TrimSpace(offer.Subcategory); subcategory != "" {
		if !strings.EqualFold(subcategory, strings.TrimSpace(product.Subcategory)) {
			return false
		}
	}
	if len(offer.ProductIDs) > 0 {
		found := false
		for _, id := range offer.ProductIDs {
			if strings.TrimSpace(id) == product.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SelectOffer picks the available offer matching product with the lowest Order value.
// Equal Order values fall back to key order so the choice never depends on input order.
func SelectOffer(candidates []domain.Offer, product domain.Product, now time.Time) (domain.Offer, bool) {
	matches := ApplicableOffers(candidates, product, now)
	if len(matches) == 0 {
		return domain.Offer{}, false
	}
	return matches[0], true
}

// ApplicableOffers returns every available offer matching product, highest priority first.
func ApplicableOffers(candidates []domain.Offer, product domain.Product, now time.Time) []domain.Offer {
	matches := make([]domain.Offer, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, offer := range candidates {
		if _, dup := seen[offer.Key]; dup {
			continue
		}
		if !OfferAvailable(offer, now) || !MatchOffer(offer, product) {
			continue
		}
		seen[offer.Key] = struct{}{}
		matches = append(matches, offer)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Order == matches[j].Order {
			return matches[i].Key < matches[j].Key
		}
		return matches[i].Order < matches[j].Order
	})
	return matches
}

package pricing

import (
	"strings"

	"github.com/storefront-field/quote-api/internal/domain"
)

// CheckDeliverability marks each product deliverable when the destination state is in its
// serviceable regions or the product has no region restriction. A blank destination state
// skips validation and reports every product deliverable.
func CheckDeliverability(destinationState string, productIDs []string, regions map[string][]string) []domain.ItemDeliverability {
	results := make([]domain.ItemDeliverability, 0, len(productIDs))
	state := NormalizeRegion(destinationState)
	for _, id := range productIDs {
		deliverable := true
		if state != "" {
			deliverable = servesRegion(regions[id], state)
		}
		results = append(results, domain.ItemDeliverability{ProductID: id, Deliverable: deliverable})
	}
	return results
}

// Undeliverable collects the product ids reported as not deliverable, preserving order.
func Undeliverable(results []domain.ItemDeliverability) []string {
	var blocked []string
	for _, item := range results {
		if !item.Deliverable {
			blocked = append(blocked, item.ProductID)
		}
	}
	return blocked
}

func servesRegion(serviceable []string, normalizedState string) bool {
	restricted := false
	for _, region := range serviceable {
		if strings.TrimSpace(region) == "" {
			continue
		}
		restricted = true
		if NormalizeRegion(region) == normalizedState {
			return true
		}
	}
	return !restricted
}

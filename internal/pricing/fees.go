package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DeliveryTier charges Fee for carts whose subtotal is at least MinSubtotal.
type DeliveryTier struct {
	MinSubtotal decimal.Decimal
	Fee         decimal.Decimal
}

// DeliveryFeeTable is an ordered list of delivery tiers.
type DeliveryFeeTable []DeliveryTier

// NewDeliveryFeeTable copies and sorts tiers by MinSubtotal ascending.
func NewDeliveryFeeTable(tiers ...DeliveryTier) DeliveryFeeTable {
	table := make(DeliveryFeeTable, len(tiers))
	copy(table, tiers)
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].MinSubtotal.LessThan(table[j].MinSubtotal)
	})
	return table
}

// FeeFor returns the fee of the tier with the greatest MinSubtotal not above subtotal.
// Subtotals below every tier, and empty tables, are charged nothing.
func (t DeliveryFeeTable) FeeFor(subtotal decimal.Decimal) decimal.Decimal {
	fee := decimal.Zero
	best := decimal.Zero
	found := false
	for _, tier := range t {
		if tier.MinSubtotal.GreaterThan(subtotal) {
			continue
		}
		if !found || tier.MinSubtotal.GreaterThanOrEqual(best) {
			best = tier.MinSubtotal
			fee = tier.Fee
			found = true
		}
	}
	return fee
}

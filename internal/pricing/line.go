package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/storefront-field/quote-api/internal/domain"
)

// PricedLine is the result of pricing one cart line.
type PricedLine struct {
	ProductID          string
	Quantity           int
	UnitPrice          decimal.Decimal
	RawAmount          decimal.Decimal
	Discount           decimal.Decimal
	LineSubtotal       decimal.Decimal
	EffectiveUnitPrice decimal.Decimal
	AppliedOffer       *domain.AppliedOffer
}

// Item converts the priced line into its quote representation.
func (p PricedLine) Item() domain.QuoteItem {
	return domain.QuoteItem{
		ProductID:          p.ProductID,
		UnitPrice:          p.UnitPrice,
		EffectiveUnitPrice: p.EffectiveUnitPrice,
		Quantity:           p.Quantity,
		LineSubtotal:       p.LineSubtotal,
		AppliedOffer:       p.AppliedOffer,
	}
}

// ValidateLine rejects lines that must never be priced.
func ValidateLine(line domain.CartLine) error {
	if strings.TrimSpace(line.ProductID) == "" {
		return &LineItemError{ProductID: line.ProductID, Reason: "is missing a product id"}
	}
	if line.Quantity < 1 {
		return &LineItemError{ProductID: line.ProductID, Reason: "quantity must be at least 1"}
	}
	if line.UnitPrice.IsNegative() {
		return &LineItemError{ProductID: line.ProductID, Reason: "unit price must not be negative"}
	}
	return nil
}

// PriceLine prices a single line, applying offer when it carries a usable discount.
// The caller is responsible for only passing offers that match the line's product.
func PriceLine(line domain.CartLine, offer *domain.Offer) (PricedLine, error) {
	if err := ValidateLine(line); err != nil {
		return PricedLine{}, err
	}

	qty := decimal.NewFromInt(int64(line.Quantity))
	raw := line.UnitPrice.Mul(qty)
	priced := PricedLine{
		ProductID:    line.ProductID,
		Quantity:     line.Quantity,
		UnitPrice:    line.UnitPrice,
		RawAmount:    raw,
		Discount:     decimal.Zero,
		LineSubtotal: raw,
	}

	if offer != nil {
		discount := decimal.Zero
		if percent, ok := DiscountPercent(*offer); ok {
			discount = raw.Mul(percent).Div(hundred).Round(0)
			if discount.GreaterThan(raw) {
				discount = raw
			}
		}
		priced.Discount = discount
		priced.LineSubtotal = raw.Sub(discount)
		priced.AppliedOffer = &domain.AppliedOffer{
			Key:      offer.Key,
			Name:     offer.Name,
			Type:     offer.Type,
			Value:    offer.Value,
			Discount: discount,
		}
	}

	priced.EffectiveUnitPrice = priced.LineSubtotal.Div(qty).Round(2)
	return priced, nil
}

// DiscountPercent returns the percentage an offer takes off, if any. Discount types use their
// numeric value; other types only discount when an explicit percentage is configured.
func DiscountPercent(offer domain.Offer) (decimal.Decimal, bool) {
	if offer.Type.IsDiscount() {
		if value, ok := offer.NumericValue(); ok && validPercent(value) {
			return value, true
		}
	}
	if offer.DiscountPercent != nil && validPercent(*offer.DiscountPercent) {
		return *offer.DiscountPercent, true
	}
	return decimal.Zero, false
}

func validPercent(value decimal.Decimal) bool {
	return value.IsPositive() && value.LessThanOrEqual(hundred)
}

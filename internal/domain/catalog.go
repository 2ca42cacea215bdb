package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OfferType enumerates the storefront offer kinds managed by the CMS.
type OfferType string

const (
	// OfferTypeDiscountMin reduces line prices by a percentage.
	OfferTypeDiscountMin OfferType = "discount-min"
	// OfferTypePackMin advertises pack deals; informational unless an explicit discount is set.
	OfferTypePackMin OfferType = "pack-min"
	// OfferTypeSearch surfaces offers on search results.
	OfferTypeSearch OfferType = "search"
	// OfferTypeCategory surfaces offers on category listings.
	OfferTypeCategory OfferType = "category"
)

// IsDiscount reports whether the offer type reduces price through its value.
func (t OfferType) IsDiscount() bool {
	return strings.Contains(strings.ToLower(string(t)), "discount")
}

// Offer is a promotional rule scoped by category, subcategory, product list and validity window.
type Offer struct {
	Key         string
	Name        string
	Type        OfferType
	Category    string
	Subcategory string
	ProductIDs  []string
	// Value holds a numeric percent for discount offers or opaque display text otherwise.
	Value string
	// DiscountPercent is an explicit discount carried by non-discount offer types.
	DiscountPercent *decimal.Decimal
	Active          bool
	ExpiryDate      *time.Time
	Order           int
	UpdatedAt       time.Time
}

// NumericValue parses Value as a decimal when it is numeric.
func (o Offer) NumericValue() (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(o.Value), "%"))
	if trimmed == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// Product is the catalog snapshot needed for pricing.
type Product struct {
	ID          string
	Name        string
	Category    string
	Subcategory string
	SellerID    string
	Price       decimal.Decimal
	TaxCategory string
	Active      bool
}

// SellerProfile carries the seller attributes that drive tax jurisdiction and deliverability.
type SellerProfile struct {
	ID     string
	Name   string
	State  string
	HasGST bool
	// ServiceableRegions lists destination states the seller ships to; empty means everywhere.
	ServiceableRegions []string
}

// Destination is the buyer's shipping destination.
type Destination struct {
	State   string
	Country string
}

// IsZero reports whether no destination details are known yet.
func (d Destination) IsZero() bool {
	return strings.TrimSpace(d.State) == "" && strings.TrimSpace(d.Country) == ""
}

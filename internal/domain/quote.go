package domain

import "github.com/shopspring/decimal"

// CartLine is one buyer-selected product with a catalog price snapshot.
type CartLine struct {
	ProductID       string
	Quantity        int
	UnitPrice       decimal.Decimal
	AppliedOfferRef string
	// SelectedSize and SelectedColor are informational and never affect price.
	SelectedSize  string
	SelectedColor string
}

// TaxBreakdown splits GST into its central, state and integrated components.
type TaxBreakdown struct {
	CGST decimal.Decimal
	SGST decimal.Decimal
	IGST decimal.Decimal
}

// Total sums every tax component.
func (t TaxBreakdown) Total() decimal.Decimal {
	return t.CGST.Add(t.SGST).Add(t.IGST)
}

// Add combines two breakdowns component-wise.
func (t TaxBreakdown) Add(other TaxBreakdown) TaxBreakdown {
	return TaxBreakdown{
		CGST: t.CGST.Add(other.CGST),
		SGST: t.SGST.Add(other.SGST),
		IGST: t.IGST.Add(other.IGST),
	}
}

// AppliedOffer echoes the offer that priced a line.
type AppliedOffer struct {
	Key      string
	Name     string
	Type     OfferType
	Value    string
	Discount decimal.Decimal
}

// QuoteItem is a priced cart line.
type QuoteItem struct {
	ProductID          string
	UnitPrice          decimal.Decimal
	EffectiveUnitPrice decimal.Decimal
	Quantity           int
	LineSubtotal       decimal.Decimal
	AppliedOffer       *AppliedOffer
}

// ItemDeliverability reports whether a product can ship to the destination.
type ItemDeliverability struct {
	ProductID   string
	Deliverable bool
}

// OrderQuote is the derived, unpersisted pricing result for a cart.
type OrderQuote struct {
	Items             []QuoteItem
	Subtotal          decimal.Decimal
	Tax               decimal.Decimal
	TaxBreakdown      TaxBreakdown
	DeliveryFee       decimal.Decimal
	Total             decimal.Decimal
	Currency          string
	OfferKey          string
	OfferApplied      bool
	Deliverability    []ItemDeliverability
	BlockedProductIDs []string
}

// Deliverable reports whether every line can be shipped.
func (q OrderQuote) Deliverable() bool {
	return len(q.BlockedProductIDs) == 0
}

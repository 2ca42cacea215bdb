package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/storefront-field/quote-api/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// TaxInput carries everything needed to split GST for one taxable amount.
type TaxInput struct {
	SellerState   string
	BuyerState    string
	BuyerCountry  string
	HomeCountry   string
	TaxableAmount decimal.Decimal
	// RatePercent is the GST rate expressed as a percentage, e.g. 5 for 5%.
	RatePercent decimal.Decimal
}

// Jurisdiction names the tax regime a sale falls under.
type Jurisdiction string

const (
	// JurisdictionExempt applies to buyers outside the home country.
	JurisdictionExempt Jurisdiction = "exempt"
	// JurisdictionIntraState splits tax into CGST and SGST.
	JurisdictionIntraState Jurisdiction = "intra_state"
	// JurisdictionInterState charges IGST.
	JurisdictionInterState Jurisdiction = "inter_state"
)

// ResolveJurisdiction decides the regime for a sale. A blank buyer country is treated as the
// home country; an unknown seller state is treated as inter-state.
func ResolveJurisdiction(sellerState, buyerState, buyerCountry, homeCountry string) Jurisdiction {
	country := strings.TrimSpace(buyerCountry)
	home := strings.TrimSpace(homeCountry)
	if country != "" && home != "" && !strings.EqualFold(country, home) {
		return JurisdictionExempt
	}
	seller := NormalizeRegion(sellerState)
	if seller != "" && seller == NormalizeRegion(buyerState) {
		return JurisdictionIntraState
	}
	return JurisdictionInterState
}

// ComputeTax returns the GST breakdown for the input. Intra-state tax is split evenly with the
// rounding remainder assigned to CGST so CGST+SGST equals the rounded tax exactly.
func ComputeTax(in TaxInput) (domain.TaxBreakdown, error) {
	if in.TaxableAmount.IsNegative() {
		return domain.TaxBreakdown{}, fmt.Errorf("%w: taxable amount %s is negative", ErrInvalidTaxInput, in.TaxableAmount)
	}
	if in.RatePercent.IsNegative() {
		return domain.TaxBreakdown{}, fmt.Errorf("%w: rate %s is negative", ErrInvalidTaxInput, in.RatePercent)
	}

	switch ResolveJurisdiction(in.SellerState, in.BuyerState, in.BuyerCountry, in.HomeCountry) {
	case JurisdictionExempt:
		return domain.TaxBreakdown{}, nil
	case JurisdictionIntraState:
		amount := taxAmount(in.TaxableAmount, in.RatePercent)
		sgst := amount.Div(two).RoundDown(2)
		return domain.TaxBreakdown{CGST: amount.Sub(sgst), SGST: sgst}, nil
	default:
		return domain.TaxBreakdown{IGST: taxAmount(in.TaxableAmount, in.RatePercent)}, nil
	}
}

func taxAmount(taxable, ratePercent decimal.Decimal) decimal.Decimal {
	return taxable.Mul(ratePercent).Div(hundred).Round(2)
}

// TaxRates maps tax categories to GST percentages with a default for uncategorised products.
type TaxRates struct {
	DefaultPercent decimal.Decimal
	ByCategory     map[string]decimal.Decimal
}

// RateFor returns the percentage that applies to the tax category.
func (r TaxRates) RateFor(category string) decimal.Decimal {
	key := strings.ToLower(strings.TrimSpace(category))
	if key != "" {
		if rate, ok := r.ByCategory[key]; ok {
			return rate
		}
	}
	return r.DefaultPercent
}

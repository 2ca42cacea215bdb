package pricing_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/pricing"
)

var featureNow = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

type quoteTestContext struct {
	rate        decimal.Decimal
	offers      []domain.Offer
	products    map[string]domain.Product
	sellers     map[string]domain.SellerProfile
	lines       []domain.CartLine
	destination domain.Destination
	quote       domain.OrderQuote
	tax         domain.TaxBreakdown
	err         error
}

func (c *quoteTestContext) reset() {
	c.rate = decimal.Zero
	c.offers = nil
	c.products = map[string]domain.Product{}
	c.sellers = map[string]domain.SellerProfile{}
	c.lines = nil
	c.destination = domain.Destination{}
	c.quote = domain.OrderQuote{}
	c.tax = domain.TaxBreakdown{}
	c.err = nil
}

func (c *quoteTestContext) theTaxRateIsPercent(rate string) error {
	value, err := decimal.NewFromString(rate)
	if err != nil {
		return err
	}
	c.rate = value
	return nil
}

func (c *quoteTestContext) aProductInCategorySoldFrom(productID, category, state string) error {
	return c.addProduct(productID, category, state, nil)
}

func (c *quoteTestContext) aProductInCategorySoldFromShippingOnlyTo(productID, category, state, region string) error {
	return c.addProduct(productID, category, state, []string{region})
}

func (c *quoteTestContext) addProduct(productID, category, state string, regions []string) error {
	sellerID := "seller-" + productID
	c.sellers[sellerID] = domain.SellerProfile{ID: sellerID, State: state, HasGST: true, ServiceableRegions: regions}
	c.products[productID] = domain.Product{ID: productID, Category: category, SellerID: sellerID}
	return nil
}

func (c *quoteTestContext) anActiveOffer(key, offerType, value, category string) error {
	c.offers = append(c.offers, domain.Offer{Key: key, Type: domain.OfferType(offerType), Value: value, Category: category, Active: true})
	return nil
}

func (c *quoteTestContext) anExpiredOffer(key, offerType, value, category string) error {
	expired := featureNow.Add(-time.Hour)
	c.offers = append(c.offers, domain.Offer{Key: key, Type: domain.OfferType(offerType), Value: value, Category: category, Active: true, ExpiryDate: &expired})
	return nil
}

func (c *quoteTestContext) aCartLineForPricedWithQuantity(productID, price string, quantity int) error {
	value, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	c.lines = append(c.lines, domain.CartLine{ProductID: productID, UnitPrice: value, Quantity: quantity})
	return nil
}

func (c *quoteTestContext) theDestinationStateIs(state string) error {
	c.destination.State = state
	return nil
}

func (c *quoteTestContext) iRequestAQuote() error {
	return c.iRequestAQuoteWithOffer("")
}

func (c *quoteTestContext) iRequestAQuoteWithOffer(key string) error {
	quoter := pricing.NewQuoter(pricing.QuoterConfig{
		TaxRates: pricing.TaxRates{DefaultPercent: c.rate},
		Now:      func() time.Time { return featureNow },
	})
	c.quote, c.err = quoter.Quote(pricing.QuoteInput{
		Lines:       c.lines,
		Destination: c.destination,
		OfferKey:    key,
		Offers:      pricing.NewOfferCatalog(c.offers...),
		Products:    c.products,
		Sellers:     c.sellers,
	})
	return nil
}

func (c *quoteTestContext) iComputeTaxFor(sellerState, buyerState, amount string) error {
	taxable, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	c.tax, c.err = pricing.ComputeTax(pricing.TaxInput{
		SellerState:   sellerState,
		BuyerState:    buyerState,
		HomeCountry:   "IN",
		TaxableAmount: taxable,
		RatePercent:   c.rate,
	})
	return nil
}

func (c *quoteTestContext) theLineSubtotalForIs(productID, want string) error {
	if c.err != nil {
		return fmt.Errorf("expected quote but got error: %v", c.err)
	}
	for _, item := range c.quote.Items {
		if item.ProductID == productID {
			return equalDecimal("line subtotal", item.LineSubtotal, want)
		}
	}
	return fmt.Errorf("no quote line for %q", productID)
}

func (c *quoteTestContext) theQuoteSubtotalIs(want string) error {
	if c.err != nil {
		return fmt.Errorf("expected quote but got error: %v", c.err)
	}
	return equalDecimal("subtotal", c.quote.Subtotal, want)
}

func (c *quoteTestContext) theTaxBreakdownIs(cgst, sgst, igst string) error {
	if c.err != nil {
		return fmt.Errorf("expected tax but got error: %v", c.err)
	}
	if err := equalDecimal("cgst", c.tax.CGST, cgst); err != nil {
		return err
	}
	if err := equalDecimal("sgst", c.tax.SGST, sgst); err != nil {
		return err
	}
	return equalDecimal("igst", c.tax.IGST, igst)
}

func (c *quoteTestContext) everyLineIsDeliverable() error {
	if len(c.quote.Deliverability) != len(c.lines) {
		return fmt.Errorf("expected %d deliverability results, got %d", len(c.lines), len(c.quote.Deliverability))
	}
	for _, item := range c.quote.Deliverability {
		if !item.Deliverable {
			return fmt.Errorf("expected %s to be deliverable", item.ProductID)
		}
	}
	return nil
}

func (c *quoteTestContext) noOfferIsApplied() error {
	if c.quote.OfferApplied {
		return fmt.Errorf("expected no offer, got %q", c.quote.OfferKey)
	}
	for _, item := range c.quote.Items {
		if item.AppliedOffer != nil {
			return fmt.Errorf("line %s carries offer %q", item.ProductID, item.AppliedOffer.Key)
		}
	}
	return nil
}

func (c *quoteTestContext) theBlockedProductsAre(ids string) error {
	got := strings.Join(c.quote.BlockedProductIDs, ",")
	if got != ids {
		return fmt.Errorf("blocked products %q, want %q", got, ids)
	}
	return nil
}

func equalDecimal(field string, got decimal.Decimal, want string) error {
	expected, err := decimal.NewFromString(want)
	if err != nil {
		return err
	}
	if !got.Equal(expected) {
		return fmt.Errorf("%s = %s, want %s", field, got, want)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &quoteTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^the tax rate is ([\d.]+) percent$`, tc.theTaxRateIsPercent)
	ctx.Step(`^a product "([^"]*)" in category "([^"]*)" sold from "([^"]*)"$`, tc.aProductInCategorySoldFrom)
	ctx.Step(`^a product "([^"]*)" in category "([^"]*)" sold from "([^"]*)" shipping only to "([^"]*)"$`, tc.aProductInCategorySoldFromShippingOnlyTo)
	ctx.Step(`^an active offer "([^"]*)" of type "([^"]*)" with value "([^"]*)" for category "([^"]*)"$`, tc.anActiveOffer)
	ctx.Step(`^an expired offer "([^"]*)" of type "([^"]*)" with value "([^"]*)" for category "([^"]*)"$`, tc.anExpiredOffer)
	ctx.Step(`^a cart line for "([^"]*)" priced ([\d.]+) with quantity (\d+)$`, tc.aCartLineForPricedWithQuantity)
	ctx.Step(`^the destination state is "([^"]*)"$`, tc.theDestinationStateIs)

	// When steps
	ctx.Step(`^I request a quote$`, tc.iRequestAQuote)
	ctx.Step(`^I request a quote with offer "([^"]*)"$`, tc.iRequestAQuoteWithOffer)
	ctx.Step(`^I compute tax for seller state "([^"]*)" and buyer state "([^"]*)" on ([\d.]+)$`, tc.iComputeTaxFor)

	// Then steps
	ctx.Step(`^the line subtotal for "([^"]*)" is ([\d.]+)$`, tc.theLineSubtotalForIs)
	ctx.Step(`^the quote subtotal is ([\d.]+)$`, tc.theQuoteSubtotalIs)
	ctx.Step(`^the tax breakdown is cgst ([\d.]+), sgst ([\d.]+) and igst ([\d.]+)$`, tc.theTaxBreakdownIs)
	ctx.Step(`^every line is deliverable$`, tc.everyLineIsDeliverable)
	ctx.Step(`^no offer is applied$`, tc.noOfferIsApplied)
	ctx.Step(`^the blocked products are "([^"]*)"$`, tc.theBlockedProductsAre)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/quote.feature"},
			Output:   os.Stdout,
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

package pricing

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront-field/quote-api/internal/domain"
)

func newTestQuoter() *Quoter {
	return NewQuoter(QuoterConfig{
		HomeCountry: "IN",
		Currency:    "INR",
		TaxRates:    TaxRates{DefaultPercent: dec("5"), ByCategory: map[string]decimal.Decimal{"premium": dec("12")}},
		DeliveryFees: DeliveryFeeTable{
			{MinSubtotal: dec("0"), Fee: dec("49")},
			{MinSubtotal: dec("999"), Fee: dec("0")},
		},
		Now: func() time.Time { return testNow },
	})
}

func testSnapshot() QuoteInput {
	return QuoteInput{
		Offers: NewOfferCatalog(
			domain.Offer{Key: "SAREE20", Name: "Saree sale", Type: domain.OfferTypeDiscountMin, Value: "20", Category: "Sarees", Active: true, Order: 2},
			domain.Offer{Key: "SILK10", Name: "Silk week", Type: domain.OfferTypeDiscountMin, Value: "10", Category: "Sarees", Subcategory: "Silk", Active: true, Order: 1},
			domain.Offer{Key: "OLD", Type: domain.OfferTypeDiscountMin, Value: "50", Active: true, ExpiryDate: timePtr(testNow.Add(-time.Hour))},
		),
		Products: map[string]domain.Product{
			"saree-1": {ID: "saree-1", Category: "Sarees", Subcategory: "Silk", SellerID: "s-mh"},
			"saree-2": {ID: "saree-2", Category: "Sarees", Subcategory: "Cotton", SellerID: "s-mh"},
			"kurta-1": {ID: "kurta-1", Category: "Kurtas", SellerID: "s-kl", TaxCategory: "premium"},
			"mug-1":   {ID: "mug-1", Category: "Home", SellerID: "s-nogst"},
		},
		Sellers: map[string]domain.SellerProfile{
			"s-mh":    {ID: "s-mh", State: "Maharashtra", HasGST: true},
			"s-kl":    {ID: "s-kl", State: "Kerala", HasGST: true, ServiceableRegions: []string{"Kerala", "Karnataka"}},
			"s-nogst": {ID: "s-nogst", State: "Goa", HasGST: false},
		},
	}
}

func TestQuoterNoOffer(t *testing.T) {
	in := testSnapshot()
	in.Lines = []domain.CartLine{{ProductID: "saree-2", Quantity: 2, UnitPrice: dec("500")}}
	in.Destination = domain.Destination{State: "Maharashtra", Country: "IN"}

	got, err := newTestQuoter().Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	assertDecimal(t, "subtotal", got.Subtotal, "1000")
	assertDecimal(t, "cgst", got.TaxBreakdown.CGST, "25")
	assertDecimal(t, "sgst", got.TaxBreakdown.SGST, "25")
	assertDecimal(t, "delivery", got.DeliveryFee, "0")
	assertDecimal(t, "total", got.Total, "1050")
	if got.OfferApplied || got.Currency != "INR" {
		t.Fatalf("unexpected quote metadata: %+v", got)
	}
}

func TestQuoterAppliesMatchingCartOffer(t *testing.T) {
	in := testSnapshot()
	in.OfferKey = "SAREE20"
	in.Lines = []domain.CartLine{
		{ProductID: "saree-2", Quantity: 2, UnitPrice: dec("500")},
		{ProductID: "kurta-1", Quantity: 1, UnitPrice: dec("300")},
	}
	in.Destination = domain.Destination{State: "Kerala"}

	got, err := newTestQuoter().Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !got.OfferApplied || got.OfferKey != "SAREE20" {
		t.Fatalf("expected cart offer applied, got %+v", got)
	}
	assertDecimal(t, "saree line", got.Items[0].LineSubtotal, "800")
	if got.Items[1].AppliedOffer != nil {
		t.Fatalf("offer must not apply to non-matching product")
	}
	assertDecimal(t, "kurta line", got.Items[1].LineSubtotal, "300")
	assertDecimal(t, "subtotal", got.Subtotal, "1100")

	// Maharashtra contributes 800 of 1100, so tax is inter-state for a Kerala buyer.
	assertDecimal(t, "igst", got.TaxBreakdown.IGST, "76")
	assertDecimal(t, "cgst", got.TaxBreakdown.CGST, "0")
	assertDecimal(t, "total", got.Total, "1176")
}

func TestQuoterLineOfferRefCompetesOnOrder(t *testing.T) {
	in := testSnapshot()
	in.OfferKey = "SAREE20"
	in.Lines = []domain.CartLine{{ProductID: "saree-1", Quantity: 1, UnitPrice: dec("1000"), AppliedOfferRef: "SILK10"}}

	got, err := newTestQuoter().Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if got.Items[0].AppliedOffer == nil || got.Items[0].AppliedOffer.Key != "SILK10" {
		t.Fatalf("expected lower order offer SILK10, got %+v", got.Items[0].AppliedOffer)
	}
	assertDecimal(t, "subtotal", got.Subtotal, "900")
	if got.OfferApplied {
		t.Fatalf("cart offer lost to line offer and must not be reported applied")
	}
}

func TestQuoterExpiredOfferIsIgnored(t *testing.T) {
	in := testSnapshot()
	in.OfferKey = "OLD"
	in.Lines = []domain.CartLine{{ProductID: "saree-2", Quantity: 2, UnitPrice: dec("500")}}

	got, err := newTestQuoter().Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	assertDecimal(t, "subtotal", got.Subtotal, "1000")
	if got.OfferApplied || got.OfferKey != "" {
		t.Fatalf("expired offer must not be applied: %+v", got)
	}
}

func TestQuoterInvalidLineFailsWholeQuote(t *testing.T) {
	in := testSnapshot()
	in.Lines = []domain.CartLine{
		{ProductID: "saree-2", Quantity: 2, UnitPrice: dec("500")},
		{ProductID: "kurta-1", Quantity: 0, UnitPrice: dec("300")},
	}
	_, err := newTestQuoter().Quote(in)
	var lineErr *LineItemError
	if !errors.As(err, &lineErr) || lineErr.ProductID != "kurta-1" {
		t.Fatalf("expected line error for kurta-1, got %v", err)
	}
}

func TestQuoterDeliverabilityIsAdvisory(t *testing.T) {
	in := testSnapshot()
	in.Lines = []domain.CartLine{
		{ProductID: "saree-2", Quantity: 1, UnitPrice: dec("500")},
		{ProductID: "kurta-1", Quantity: 1, UnitPrice: dec("300")},
	}
	in.Destination = domain.Destination{State: "Goa"}

	got, err := newTestQuoter().Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if got.Deliverable() {
		t.Fatalf("expected blocked items")
	}
	if !reflect.DeepEqual(got.BlockedProductIDs, []string{"kurta-1"}) {
		t.Fatalf("unexpected blocked ids %v", got.BlockedProductIDs)
	}
	assertDecimal(t, "subtotal", got.Subtotal, "800")
}

func TestQuoterExcludesUnregisteredSellersFromTax(t *testing.T) {
	in := testSnapshot()
	in.Lines = []domain.CartLine{
		{ProductID: "mug-1", Quantity: 1, UnitPrice: dec("200")},
		{ProductID: "saree-2", Quantity: 1, UnitPrice: dec("100")},
	}
	in.Destination = domain.Destination{State: "Maharashtra"}

	got, err := newTestQuoter().Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	// Only the 100 from the registered Maharashtra seller is taxable.
	assertDecimal(t, "cgst", got.TaxBreakdown.CGST, "2.5")
	assertDecimal(t, "sgst", got.TaxBreakdown.SGST, "2.5")
	assertDecimal(t, "delivery", got.DeliveryFee, "49")
	assertDecimal(t, "total", got.Total, "354")
}

func TestQuoterGroupsLinesByRate(t *testing.T) {
	in := testSnapshot()
	in.Lines = []domain.CartLine{
		{ProductID: "kurta-1", Quantity: 1, UnitPrice: dec("1000")},
		{ProductID: "saree-2", Quantity: 1, UnitPrice: dec("100")},
	}
	in.Destination = domain.Destination{State: "Kerala"}

	got, err := newTestQuoter().Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	// Kerala dominates: 12% of 1000 plus 5% of 100, split intra-state.
	assertDecimal(t, "tax", got.Tax, "125")
	assertDecimal(t, "cgst", got.TaxBreakdown.CGST, "62.5")
	assertDecimal(t, "sgst", got.TaxBreakdown.SGST, "62.5")
	assertDecimal(t, "igst", got.TaxBreakdown.IGST, "0")
}

func TestQuoterForeignDestinationIsTaxFree(t *testing.T) {
	in := testSnapshot()
	in.Lines = []domain.CartLine{{ProductID: "saree-2", Quantity: 1, UnitPrice: dec("100")}}
	in.Destination = domain.Destination{State: "California", Country: "US"}

	got, err := newTestQuoter().Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !got.Tax.IsZero() {
		t.Fatalf("expected zero tax, got %s", got.Tax)
	}
}

func TestQuoterEmptyCart(t *testing.T) {
	got, err := newTestQuoter().Quote(testSnapshot())
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !got.Total.IsZero() || !got.DeliveryFee.IsZero() || len(got.Items) != 0 {
		t.Fatalf("expected empty quote, got %+v", got)
	}
}

func TestQuoterIsIdempotent(t *testing.T) {
	in := testSnapshot()
	in.OfferKey = "SAREE20"
	in.Now = testNow
	in.Lines = []domain.CartLine{
		{ProductID: "saree-1", Quantity: 3, UnitPrice: dec("333.33"), AppliedOfferRef: "SILK10"},
		{ProductID: "kurta-1", Quantity: 2, UnitPrice: dec("149.99")},
		{ProductID: "mug-1", Quantity: 1, UnitPrice: dec("75.5")},
	}
	in.Destination = domain.Destination{State: "Karnataka", Country: "IN"}

	quoter := newTestQuoter()
	first, err := quoter.Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	second, err := quoter.Quote(in)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("quotes differ:\n%+v\n%+v", first, second)
	}
}

func TestDominantSellerStateTieBreak(t *testing.T) {
	lines := []taxableLine{
		{sellerState: "maharashtra", amount: dec("100")},
		{sellerState: "kerala", amount: dec("60")},
		{sellerState: "kerala", amount: dec("40")},
	}
	if got := dominantSellerState(lines); got != "kerala" {
		t.Fatalf("expected kerala on tie, got %q", got)
	}
	lines = append(lines, taxableLine{sellerState: "maharashtra", amount: dec("0.01")})
	if got := dominantSellerState(lines); got != "maharashtra" {
		t.Fatalf("expected maharashtra, got %q", got)
	}
}

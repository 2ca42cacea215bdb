package pricing

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront-field/quote-api/internal/domain"
)

const (
	defaultHomeCountry = "IN"
	defaultCurrency    = "INR"
)

// QuoterConfig configures a Quoter.
type QuoterConfig struct {
	HomeCountry  string
	Currency     string
	TaxRates     TaxRates
	DeliveryFees DeliveryFeeTable
	Now          func() time.Time
}

// Quoter aggregates priced lines, delivery fees and GST into an order quote.
// It performs no I/O and holds no mutable state, so a single value may serve concurrent callers.
type Quoter struct {
	homeCountry string
	currency    string
	rates       TaxRates
	fees        DeliveryFeeTable
	now         func() time.Time
}

// NewQuoter constructs a Quoter, defaulting home country, currency and clock.
func NewQuoter(cfg QuoterConfig) *Quoter {
	home := strings.ToUpper(strings.TrimSpace(cfg.HomeCountry))
	if home == "" {
		home = defaultHomeCountry
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Quoter{
		homeCountry: home,
		currency:    currency,
		rates:       cfg.TaxRates,
		fees:        NewDeliveryFeeTable(cfg.DeliveryFees...),
		now: func() time.Time {
			return now().UTC()
		},
	}
}

// QuoteInput is a snapshot of everything needed to price a cart.
type QuoteInput struct {
	Lines       []domain.CartLine
	Destination domain.Destination
	OfferKey    string
	// Now fixes the instant offers are evaluated at; zero uses the quoter clock.
	Now      time.Time
	Offers   OfferCatalog
	Products map[string]domain.Product
	Sellers  map[string]domain.SellerProfile
}

// Quote prices every line, applies the best matching offer per line, computes delivery fee
// and tax, and returns the aggregate. Any invalid line fails the whole quote.
func (q *Quoter) Quote(in QuoteInput) (domain.OrderQuote, error) {
	for _, line := range in.Lines {
		if err := ValidateLine(line); err != nil {
			return domain.OrderQuote{}, err
		}
	}

	now := in.Now
	if now.IsZero() {
		now = q.now()
	}

	var cartOffer *domain.Offer
	if strings.TrimSpace(in.OfferKey) != "" {
		offer, err := in.Offers.Resolve(in.OfferKey, now)
		switch {
		case err == nil:
			cartOffer = &offer
		case errors.Is(err, ErrOfferUnavailable):
		default:
			return domain.OrderQuote{}, err
		}
	}

	quote := domain.OrderQuote{
		Items:        make([]domain.QuoteItem, 0, len(in.Lines)),
		Subtotal:     decimal.Zero,
		Tax:          decimal.Zero,
		DeliveryFee:  decimal.Zero,
		Total:        decimal.Zero,
		Currency:     q.currency,
		TaxBreakdown: domain.TaxBreakdown{CGST: decimal.Zero, SGST: decimal.Zero, IGST: decimal.Zero},
	}
	if cartOffer != nil {
		quote.OfferKey = cartOffer.Key
	}

	taxable := make([]taxableLine, 0, len(in.Lines))
	productIDs := make([]string, 0, len(in.Lines))
	regions := make(map[string][]string, len(in.Lines))

	for _, line := range in.Lines {
		product := q.productFor(in.Products, line.ProductID)

		var candidates []domain.Offer
		if cartOffer != nil {
			candidates = append(candidates, *cartOffer)
		}
		if ref := strings.TrimSpace(line.AppliedOfferRef); ref != "" {
			if offer, err := in.Offers.Resolve(ref, now); err == nil {
				candidates = append(candidates, offer)
			}
		}

		var selected *domain.Offer
		if offer, ok := SelectOffer(candidates, product, now); ok {
			selected = &offer
			if cartOffer != nil && offer.Key == cartOffer.Key {
				quote.OfferApplied = true
			}
		}

		priced, err := PriceLine(line, selected)
		if err != nil {
			return domain.OrderQuote{}, err
		}
		quote.Items = append(quote.Items, priced.Item())
		quote.Subtotal = quote.Subtotal.Add(priced.LineSubtotal)

		seller, known := in.Sellers[product.SellerID]
		if !known || seller.HasGST {
			taxable = append(taxable, taxableLine{
				sellerState: NormalizeRegion(seller.State),
				rate:        q.rates.RateFor(product.TaxCategory),
				amount:      priced.LineSubtotal,
			})
		}
		productIDs = append(productIDs, line.ProductID)
		regions[line.ProductID] = seller.ServiceableRegions
	}

	quote.Deliverability = CheckDeliverability(in.Destination.State, productIDs, regions)
	quote.BlockedProductIDs = Undeliverable(quote.Deliverability)

	breakdown, err := q.taxFor(taxable, in.Destination)
	if err != nil {
		return domain.OrderQuote{}, err
	}
	quote.TaxBreakdown = breakdown
	quote.Tax = breakdown.Total()

	if len(in.Lines) > 0 {
		quote.DeliveryFee = q.fees.FeeFor(quote.Subtotal)
	}
	quote.Total = quote.Subtotal.Add(quote.Tax).Add(quote.DeliveryFee)
	return quote, nil
}

// HomeCountry returns the country treated as domestic for GST.
func (q *Quoter) HomeCountry() string { return q.homeCountry }

// Currency returns the quote currency.
func (q *Quoter) Currency() string { return q.currency }

func (q *Quoter) productFor(products map[string]domain.Product, id string) domain.Product {
	if product, ok := products[id]; ok {
		if product.ID == "" {
			product.ID = id
		}
		return product
	}
	return domain.Product{ID: id}
}

type taxableLine struct {
	sellerState string
	rate        decimal.Decimal
	amount      decimal.Decimal
}

// taxFor groups taxable amounts by rate and computes each group under the dominant seller state.
func (q *Quoter) taxFor(lines []taxableLine, destination domain.Destination) (domain.TaxBreakdown, error) {
	total := domain.TaxBreakdown{CGST: decimal.Zero, SGST: decimal.Zero, IGST: decimal.Zero}
	if len(lines) == 0 {
		return total, nil
	}

	sellerState := dominantSellerState(lines)

	groups := make(map[string]decimal.Decimal)
	rates := make(map[string]decimal.Decimal)
	for _, line := range lines {
		key := line.rate.String()
		groups[key] = groups[key].Add(line.amount)
		rates[key] = line.rate
	}
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		breakdown, err := ComputeTax(TaxInput{
			SellerState:   sellerState,
			BuyerState:    destination.State,
			BuyerCountry:  destination.Country,
			HomeCountry:   q.homeCountry,
			TaxableAmount: groups[key],
			RatePercent:   rates[key],
		})
		if err != nil {
			return domain.TaxBreakdown{}, err
		}
		total = total.Add(breakdown)
	}
	return total, nil
}

// dominantSellerState returns the normalised seller state contributing the largest taxable
// share. Ties resolve to the lexicographically smallest state; unknown states compete as "".
func dominantSellerState(lines []taxableLine) string {
	shares := make(map[string]decimal.Decimal)
	for _, line := range lines {
		shares[line.sellerState] = shares[line.sellerState].Add(line.amount)
	}
	best := ""
	bestShare := decimal.Zero
	found := false
	for state, share := range shares {
		switch {
		case !found, share.GreaterThan(bestShare):
			best, bestShare, found = state, share, true
		case share.Equal(bestShare) && state < best:
			best = state
		}
	}
	return best
}

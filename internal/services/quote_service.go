package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/platform/observability"
	"github.com/storefront-field/quote-api/internal/pricing"
	"github.com/storefront-field/quote-api/internal/repositories"
)

const (
	maxQuoteLines          = 100
	maxLineQuantity        = 999
	defaultSnapshotTimeout = 3 * time.Second
)

var (
	// ErrQuoteInvalidInput signals a malformed quote request.
	ErrQuoteInvalidInput = errors.New("quote: invalid input")
	// ErrProductNotFound signals a cart line or offer listing for an unknown or inactive product.
	ErrProductNotFound = errors.New("quote: product not found")
	// ErrUpstreamDataUnavailable signals that catalog, offer or seller data could not be read.
	// Callers may retry.
	ErrUpstreamDataUnavailable = errors.New("quote: upstream data unavailable")
)

// QuoteServiceDeps bundles collaborators required to construct the quote service.
type QuoteServiceDeps struct {
	Offers       repositories.OfferRepository
	Products     repositories.ProductRepository
	Sellers      repositories.SellerRepository
	Destinations DestinationStore
	Quoter       *pricing.Quoter
	Categories   pricing.CategoryAllowList
	// SnapshotTimeout bounds the concurrent catalog reads of a single quote.
	SnapshotTimeout time.Duration
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type quoteService struct {
	offers          repositories.OfferRepository
	products        repositories.ProductRepository
	sellers         repositories.SellerRepository
	destinations    DestinationStore
	quoter          *pricing.Quoter
	categories      pricing.CategoryAllowList
	snapshotTimeout time.Duration
	clock           func() time.Time
	logger          func(context.Context, string, map[string]any)
	sanitizer       *bluemonday.Policy
}

var _ QuoteService = (*quoteService)(nil)

// NewQuoteService wires repositories and the pricing core into a QuoteService.
func NewQuoteService(deps QuoteServiceDeps) (QuoteService, error) {
	if deps.Offers == nil {
		return nil, errors.New("quote service: offer repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("quote service: product repository is required")
	}
	if deps.Sellers == nil {
		return nil, errors.New("quote service: seller repository is required")
	}
	if deps.Quoter == nil {
		return nil, errors.New("quote service: quoter is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	timeout := deps.SnapshotTimeout
	if timeout <= 0 {
		timeout = defaultSnapshotTimeout
	}

	return &quoteService{
		offers:          deps.Offers,
		products:        deps.Products,
		sellers:         deps.Sellers,
		destinations:    deps.Destinations,
		quoter:          deps.Quoter,
		categories:      deps.Categories,
		snapshotTimeout: timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (s *quoteService) Quote(ctx context.Context, cmd QuoteCommand) (quote domain.OrderQuote, err error) {
	ctx, span := observability.StartSpan(ctx, "services.Quote",
		attribute.Int("quote.lines", len(cmd.Lines)),
		attribute.String("quote.offer_key", strings.TrimSpace(cmd.OfferKey)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if err := validateQuoteLines(cmd.Lines); err != nil {
		return domain.OrderQuote{}, err
	}

	destination := s.resolveDestination(ctx, cmd.SessionID, cmd.Destination)

	now := s.clock()
	snap, err := s.loadSnapshot(ctx, cmd.Lines, cmd.OfferKey)
	if err != nil {
		return domain.OrderQuote{}, err
	}

	lines := make([]domain.CartLine, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		productID := strings.TrimSpace(line.ProductID)
		product, ok := snap.products[productID]
		if !ok || !product.Active {
			return domain.OrderQuote{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		lines = append(lines, domain.CartLine{
			ProductID:       productID,
			Quantity:        line.Quantity,
			UnitPrice:       product.Price,
			AppliedOfferRef: strings.TrimSpace(line.AppliedOfferRef),
			SelectedSize:    strings.TrimSpace(line.SelectedSize),
			SelectedColor:   strings.TrimSpace(line.SelectedColor),
		})
	}

	quote, err = s.quoter.Quote(pricing.QuoteInput{
		Lines:       lines,
		Destination: destination,
		OfferKey:    strings.TrimSpace(cmd.OfferKey),
		Now:         now,
		Offers:      pricing.NewOfferCatalog(snap.offers...),
		Products:    snap.products,
		Sellers:     snap.sellers,
	})
	if err != nil {
		return domain.OrderQuote{}, err
	}

	for i := range quote.Items {
		if applied := quote.Items[i].AppliedOffer; applied != nil {
			applied.Name = s.sanitize(applied.Name)
		}
	}

	if len(quote.BlockedProductIDs) > 0 {
		s.logger(ctx, "quote.undeliverable", map[string]any{
			"state":    destination.State,
			"products": quote.BlockedProductIDs,
		})
	}
	span.SetAttributes(
		attribute.String("quote.total", quote.Total.StringFixed(2)),
		attribute.Bool("quote.offer_applied", quote.OfferApplied),
	)
	return quote, nil
}

func (s *quoteService) ListOffers(ctx context.Context, query OfferListQuery) ([]domain.Offer, error) {
	productID := strings.TrimSpace(query.ProductID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrQuoteInvalidInput)
	}
	if err := s.categories.Check(query.Category, query.Subcategory); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.snapshotTimeout)
	defer cancel()

	var (
		product domain.Product
		offers  []domain.Offer
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		product, err = s.products.FindByID(gctx, productID)
		return err
	})
	group.Go(func() error {
		var err error
		offers, err = s.offers.ListActive(gctx)
		return err
	})
	if err := group.Wait(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, s.upstreamError(ctx, "offers.list", err)
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	applicable := pricing.ApplicableOffers(offers, product, s.clock())
	result := make([]domain.Offer, 0, len(applicable))
	for _, offer := range applicable {
		if !matchesFilter(offer.Category, query.Category) || !matchesFilter(offer.Subcategory, query.Subcategory) {
			continue
		}
		offer.Name = s.sanitize(offer.Name)
		result = append(result, offer)
	}
	return result, nil
}

type quoteSnapshot struct {
	products map[string]domain.Product
	sellers  map[string]domain.SellerProfile
	offers   []domain.Offer
}

// loadSnapshot reads products and the referenced offers concurrently, then the sellers of
// those products. Missing offers are skipped; any other read failure aborts the snapshot.
func (s *quoteService) loadSnapshot(ctx context.Context, lines []QuoteLineInput, offerKey string) (quoteSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.snapshotTimeout)
	defer cancel()

	productIDs := make([]string, 0, len(lines))
	keys := make([]string, 0, len(lines)+1)
	seenProducts := make(map[string]struct{}, len(lines))
	seenKeys := make(map[string]struct{}, len(lines)+1)
	addKey := func(key string) {
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		if _, ok := seenKeys[key]; ok {
			return
		}
		seenKeys[key] = struct{}{}
		keys = append(keys, key)
	}
	addKey(offerKey)
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if _, ok := seenProducts[id]; !ok {
			seenProducts[id] = struct{}{}
			productIDs = append(productIDs, id)
		}
		addKey(line.AppliedOfferRef)
	}

	snap := quoteSnapshot{}
	offers := make([]*domain.Offer, len(keys))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		products, err := s.products.FindByIDs(gctx, productIDs)
		if err != nil {
			return err
		}
		snap.products = products
		return nil
	})
	for i, key := range keys {
		i, key := i, key
		group.Go(func() error {
			offer, err := s.offers.FindByKey(gctx, key)
			if err != nil {
				if isNotFound(err) {
					return nil
				}
				return err
			}
			offers[i] = &offer
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return quoteSnapshot{}, s.upstreamError(ctx, "quote.snapshot", err)
	}

	for _, offer := range offers {
		if offer != nil {
			snap.offers = append(snap.offers, *offer)
		}
	}

	sellerIDs := make([]string, 0, len(snap.products))
	seenSellers := make(map[string]struct{}, len(snap.products))
	for _, product := range snap.products {
		if product.SellerID == "" {
			continue
		}
		if _, ok := seenSellers[product.SellerID]; ok {
			continue
		}
		seenSellers[product.SellerID] = struct{}{}
		sellerIDs = append(sellerIDs, product.SellerID)
	}
	sort.Strings(sellerIDs)

	snap.sellers = map[string]domain.SellerProfile{}
	if len(sellerIDs) > 0 {
		sellers, err := s.sellers.FindByIDs(ctx, sellerIDs)
		if err != nil {
			return quoteSnapshot{}, s.upstreamError(ctx, "quote.sellers", err)
		}
		snap.sellers = sellers
	}
	return snap, nil
}

// resolveDestination prefers the explicit destination and remembers it for the session.
// Without one, the session's stored destination is used. Store failures never fail a quote.
func (s *quoteService) resolveDestination(ctx context.Context, sessionID string, explicit *domain.Destination) domain.Destination {
	sessionID = strings.TrimSpace(sessionID)
	if explicit != nil {
		destination := domain.Destination{
			State:   strings.TrimSpace(explicit.State),
			Country: strings.ToUpper(strings.TrimSpace(explicit.Country)),
		}
		if sessionID != "" && s.destinations != nil && !destination.IsZero() {
			if err := s.destinations.Save(ctx, sessionID, destination); err != nil {
				s.logger(ctx, "quote.destination.save_failed", map[string]any{"error": err.Error()})
			}
		}
		return destination
	}
	if sessionID == "" || s.destinations == nil {
		return domain.Destination{}
	}
	destination, err := s.destinations.Load(ctx, sessionID)
	if err != nil {
		if !isNotFound(err) {
			s.logger(ctx, "quote.destination.load_failed", map[string]any{"error": err.Error()})
		}
		return domain.Destination{}
	}
	return destination
}

func (s *quoteService) upstreamError(ctx context.Context, op string, err error) error {
	s.logger(ctx, op+".failed", map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %v", ErrUpstreamDataUnavailable, err)
}

func (s *quoteService) sanitize(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func validateQuoteLines(lines []QuoteLineInput) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrQuoteInvalidInput)
	}
	if len(lines) > maxQuoteLines {
		return fmt.Errorf("%w: at most %d lines are allowed", ErrQuoteInvalidInput, maxQuoteLines)
	}
	for i, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: line %d product id is required", ErrQuoteInvalidInput, i)
		}
		if line.Quantity > maxLineQuantity {
			return fmt.Errorf("%w: line %d quantity exceeds %d", ErrQuoteInvalidInput, i, maxLineQuantity)
		}
	}
	return nil
}

func matchesFilter(value, filter string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, filter)
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/storefront-field/quote-api/internal/domain"
	pfirestore "github.com/storefront-field/quote-api/internal/platform/firestore"
	"github.com/storefront-field/quote-api/internal/repositories"
)

const (
	ordersCollection           = "orders"
	orderIdempotencyCollection = "orderIdempotencyKeys"
	defaultOrderListLimit      = 50
)

// OrderRepository persists orders and claims idempotency keys atomically with the order write.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	keys     *pfirestore.BaseRepository[idempotencyDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		keys:     pfirestore.NewBaseRepository[idempotencyDocument](provider, orderIdempotencyCollection, nil),
	}, nil
}

// Insert creates the order document and, when present, its idempotency claim in one transaction.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	orderRef, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)

	key := strings.TrimSpace(order.IdempotencyKey)
	if key == "" {
		return r.orders.Create(ctx, order.ID, doc)
	}
	keyRef, err := r.keys.DocumentRef(ctx, idempotencyDocID(order.UserID, key))
	if err != nil {
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(keyRef)
		if err == nil && snap.Exists() {
			return pfirestore.ConflictError("orders.insert", "idempotency key already used by order %s", snap.Data()["orderId"])
		}
		if err != nil && !isNotFound(err) {
			return err
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		return tx.Create(keyRef, idempotencyDocument{
			OrderID:   order.ID,
			UserID:    order.UserID,
			CreatedAt: order.CreatedAt.UTC(),
		})
	})
}

// Update replaces an existing order. Missing orders yield a not-found error.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, doc)
	})
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data)
}

// FindByIdempotencyKey resolves the order that claimed key for userID.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error) {
	keyRef, err := r.keys.DocumentRef(ctx, idempotencyDocID(userID, key))
	if err != nil {
		return domain.Order{}, err
	}

	var order domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimSnap, err := tx.Get(keyRef)
		if err != nil {
			return err
		}
		claim, err := r.keys.Decode(claimSnap)
		if err != nil {
			return err
		}
		orderRef, err := r.orders.DocumentRef(ctx, claim.Data.OrderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		doc, err := r.orders.Decode(orderSnap)
		if err != nil {
			return err
		}
		order, err = decodeOrderDocument(doc.ID, doc.Data)
		return err
	}, pfirestore.ReadOnly())
	return order, err
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("order repository: user id is required")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOrderListLimit
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		if productID := strings.TrimSpace(filter.ProductID); productID != "" {
			q = q.Where("productIds", "array-contains", productID)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if filter.After != nil {
			q = q.StartAfter(filter.After.CreatedAt.UTC(), filter.After.OrderID)
		}
		return q.Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrderDocument(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func idempotencyDocID(userID, key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(userID) + "\x00" + strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(pfirestore.WrapError("", err), &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

type idempotencyDocument struct {
	OrderID   string    `firestore:"orderId"`
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type orderDocument struct {
	UserID         string              `firestore:"userId"`
	Status         string              `firestore:"status"`
	Destination    destinationDocument `firestore:"destination"`
	Lines          []cartLineDocument  `firestore:"lines"`
	ProductIDs     []string            `firestore:"productIds"`
	Quote          quoteDocument       `firestore:"quote"`
	Payment        *paymentDocument    `firestore:"payment,omitempty"`
	IdempotencyKey string              `firestore:"idempotencyKey,omitempty"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
	DeliveredAt    *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt    *time.Time          `firestore:"cancelledAt,omitempty"`
}

type cartLineDocument struct {
	ProductID       string `firestore:"productId"`
	Quantity        int    `firestore:"quantity"`
	UnitPrice       string `firestore:"unitPrice"`
	AppliedOfferRef string `firestore:"appliedOfferRef,omitempty"`
	SelectedSize    string `firestore:"selectedSize,omitempty"`
	SelectedColor   string `firestore:"selectedColor,omitempty"`
}

type quoteDocument struct {
	Items             []quoteItemDocument `firestore:"items"`
	Subtotal          string              `firestore:"subtotal"`
	Tax               string              `firestore:"tax"`
	CGST              string              `firestore:"cgst"`
	SGST              string              `firestore:"sgst"`
	IGST              string              `firestore:"igst"`
	DeliveryFee       string              `firestore:"deliveryFee"`
	Total             string              `firestore:"total"`
	Currency          string              `firestore:"currency"`
	OfferKey          string              `firestore:"offerKey,omitempty"`
	OfferApplied      bool                `firestore:"offerApplied"`
	BlockedProductIDs []string            `firestore:"blockedProductIds,omitempty"`
}

type quoteItemDocument struct {
	ProductID          string                `firestore:"productId"`
	UnitPrice          string                `firestore:"unitPrice"`
	EffectiveUnitPrice string                `firestore:"effectiveUnitPrice"`
	Quantity           int                   `firestore:"quantity"`
	LineSubtotal       string                `firestore:"lineSubtotal"`
	AppliedOffer       *appliedOfferDocument `firestore:"appliedOffer,omitempty"`
}

type appliedOfferDocument struct {
	Key      string `firestore:"key"`
	Name     string `firestore:"name"`
	Type     string `firestore:"type"`
	Value    string `firestore:"value"`
	Discount string `firestore:"discount"`
}

type paymentDocument struct {
	Provider     string    `firestore:"provider"`
	IntentID     string    `firestore:"intentId"`
	ClientSecret string    `firestore:"clientSecret,omitempty"`
	Status       string    `firestore:"status"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:         order.UserID,
		Status:         string(order.Status),
		Destination:    destinationDocument{State: order.Destination.State, Country: order.Destination.Country},
		Lines:          make([]cartLineDocument, 0, len(order.Lines)),
		Quote:          encodeQuoteDocument(order.Quote),
		IdempotencyKey: order.IdempotencyKey,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		DeliveredAt:    order.DeliveredAt,
		CancelledAt:    order.CancelledAt,
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, cartLineDocument{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPrice:       encodeDecimal(line.UnitPrice),
			AppliedOfferRef: line.AppliedOfferRef,
			SelectedSize:    line.SelectedSize,
			SelectedColor:   line.SelectedColor,
		})
	}
	for _, item := range order.Quote.Items {
		doc.ProductIDs = append(doc.ProductIDs, item.ProductID)
	}
	if order.Payment != nil {
		doc.Payment = &paymentDocument{
			Provider:     order.Payment.Provider,
			IntentID:     order.Payment.IntentID,
			ClientSecret: order.Payment.ClientSecret,
			Status:       order.Payment.Status,
			UpdatedAt:    order.Payment.UpdatedAt.UTC(),
		}
	}
	return doc
}

func encodeQuoteDocument(quote domain.OrderQuote) quoteDocument {
	doc := quoteDocument{
		Items:             make([]quoteItemDocument, 0, len(quote.Items)),
		Subtotal:          encodeDecimal(quote.Subtotal),
		Tax:               encodeDecimal(quote.Tax),
		CGST:              encodeDecimal(quote.TaxBreakdown.CGST),
		SGST:              encodeDecimal(quote.TaxBreakdown.SGST),
		IGST:              encodeDecimal(quote.TaxBreakdown.IGST),
		DeliveryFee:       encodeDecimal(quote.DeliveryFee),
		Total:             encodeDecimal(quote.Total),
		Currency:          quote.Currency,
		OfferKey:          quote.OfferKey,
		OfferApplied:      quote.OfferApplied,
		BlockedProductIDs: append([]string(nil), quote.BlockedProductIDs...),
	}
	for _, item := range quote.Items {
		itemDoc := quoteItemDocument{
			ProductID:          item.ProductID,
			UnitPrice:          encodeDecimal(item.UnitPrice),
			EffectiveUnitPrice: encodeDecimal(item.EffectiveUnitPrice),
			Quantity:           item.Quantity,
			LineSubtotal:       encodeDecimal(item.LineSubtotal),
		}
		if offer := item.AppliedOffer; offer != nil {
			itemDoc.AppliedOffer = &appliedOfferDocument{
				Key:      offer.Key,
				Name:     offer.Name,
				Type:     string(offer.Type),
				Value:    offer.Value,
				Discount: encodeDecimal(offer.Discount),
			}
		}
		doc.Items = append(doc.Items, itemDoc)
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument) (domain.Order, error) {
	order := domain.Order{
		ID:             id,
		UserID:         doc.UserID,
		Status:         domain.OrderStatus(doc.Status),
		Destination:    domain.Destination{State: doc.Destination.State, Country: doc.Destination.Country},
		Lines:          make([]domain.CartLine, 0, len(doc.Lines)),
		IdempotencyKey: doc.IdempotencyKey,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
		DeliveredAt:    doc.DeliveredAt,
		CancelledAt:    doc.CancelledAt,
	}
	for _, line := range doc.Lines {
		price, err := decodeDecimal("orders."+id+".lines.unitPrice", line.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		order.Lines = append(order.Lines, domain.CartLine{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPrice:       price,
			AppliedOfferRef: line.AppliedOfferRef,
			SelectedSize:    line.SelectedSize,
			SelectedColor:   line.SelectedColor,
		})
	}
	quote, err := decodeQuoteDocument(id, doc.Quote)
	if err != nil {
		return domain.Order{}, err
	}
	order.Quote = quote
	if doc.Payment != nil {
		order.Payment = &domain.OrderPayment{
			Provider:     doc.Payment.Provider,
			IntentID:     doc.Payment.IntentID,
			ClientSecret: doc.Payment.ClientSecret,
			Status:       doc.Payment.Status,
			UpdatedAt:    doc.Payment.UpdatedAt.UTC(),
		}
	}
	return order, nil
}

func decodeQuoteDocument(orderID string, doc quoteDocument) (domain.OrderQuote, error) {
	prefix := "orders." + orderID + ".quote."
	var err error
	field := func(name, raw string) decimal.Decimal {
		if err != nil {
			return decimal.Zero
		}
		value, decodeErr := decodeDecimal(prefix+name, raw)
		err = decodeErr
		return value
	}

	quote := domain.OrderQuote{
		Items:             make([]domain.QuoteItem, 0, len(doc.Items)),
		Subtotal:          field("subtotal", doc.Subtotal),
		Tax:               field("tax", doc.Tax),
		DeliveryFee:       field("deliveryFee", doc.DeliveryFee),
		Total:             field("total", doc.Total),
		Currency:          doc.Currency,
		OfferKey:          doc.OfferKey,
		OfferApplied:      doc.OfferApplied,
		BlockedProductIDs: append([]string(nil), doc.BlockedProductIDs...),
	}
	quote.TaxBreakdown = domain.TaxBreakdown{
		CGST: field("cgst", doc.CGST),
		SGST: field("sgst", doc.SGST),
		IGST: field("igst", doc.IGST),
	}
	blocked := make(map[string]struct{}, len(doc.BlockedProductIDs))
	for _, id := range doc.BlockedProductIDs {
		blocked[id] = struct{}{}
	}
	for _, itemDoc := range doc.Items {
		item := domain.QuoteItem{
			ProductID:          itemDoc.ProductID,
			UnitPrice:          field("unitPrice", itemDoc.UnitPrice),
			EffectiveUnitPrice: field("effectiveUnitPrice", itemDoc.EffectiveUnitPrice),
			Quantity:           itemDoc.Quantity,
			LineSubtotal:       field("lineSubtotal", itemDoc.LineSubtotal),
		}
		if offer := itemDoc.AppliedOffer; offer != nil {
			item.AppliedOffer = &domain.AppliedOffer{
				Key:      offer.Key,
				Name:     offer.Name,
				Type:     domain.OfferType(offer.Type),
				Value:    offer.Value,
				Discount: field("discount", offer.Discount),
			}
		}
		quote.Items = append(quote.Items, item)
		_, isBlocked := blocked[item.ProductID]
		quote.Deliverability = append(quote.Deliverability, domain.ItemDeliverability{
			ProductID:   item.ProductID,
			Deliverable: !isBlocked,
		})
	}
	if err != nil {
		return domain.OrderQuote{}, err
	}
	return quote, nil
}

package handlers

import (
	"strings"
	"time"

	domain "github.com/storefront-field/quote-api/internal/domain"
	"github.com/storefront-field/quote-api/internal/services"
)

type destinationRequest struct {
	State   string `json:"state"`
	Country string `json:"country"`
}

type cartLineRequest struct {
	ProductID       string `json:"productId"`
	Quantity        int    `json:"quantity"`
	AppliedOfferRef string `json:"appliedOfferRef,omitempty"`
	SelectedSize    string `json:"selectedSize,omitempty"`
	SelectedColor   string `json:"selectedColor,omitempty"`
}

type quoteRequest struct {
	Lines       []cartLineRequest   `json:"lines"`
	Destination *destinationRequest `json:"destination,omitempty"`
	OfferKey    string              `json:"offerKey,omitempty"`
}

func (r quoteRequest) lineInputs() []services.QuoteLineInput {
	lines := make([]services.QuoteLineInput, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, services.QuoteLineInput{
			ProductID:       strings.TrimSpace(line.ProductID),
			Quantity:        line.Quantity,
			AppliedOfferRef: strings.TrimSpace(line.AppliedOfferRef),
			SelectedSize:    strings.TrimSpace(line.SelectedSize),
			SelectedColor:   strings.TrimSpace(line.SelectedColor),
		})
	}
	return lines
}

func (r quoteRequest) destination() *domain.Destination {
	if r.Destination == nil {
		return nil
	}
	return &domain.Destination{
		State:   strings.TrimSpace(r.Destination.State),
		Country: strings.TrimSpace(r.Destination.Country),
	}
}

type appliedOfferPayload struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Value    any     `json:"value"`
	Discount float64 `json:"discount"`
}

type quoteItemPayload struct {
	ProductID          string               `json:"productId"`
	UnitPrice          float64              `json:"unitPrice"`
	EffectiveUnitPrice float64              `json:"effectiveUnitPrice"`
	Quantity           int                  `json:"quantity"`
	LineSubtotal       float64              `json:"lineSubtotal"`
	AppliedOffer       *appliedOfferPayload `json:"appliedOffer,omitempty"`
}

type taxBreakdownPayload struct {
	CGST float64 `json:"cgst"`
	SGST float64 `json:"sgst"`
	IGST float64 `json:"igst"`
}

type deliverabilityPayload struct {
	ProductID   string `json:"productId"`
	Deliverable bool   `json:"deliverable"`
}

type quotePayload struct {
	Items             []quoteItemPayload      `json:"items"`
	Subtotal          float64                 `json:"subtotal"`
	Tax               float64                 `json:"tax"`
	TaxBreakdown      taxBreakdownPayload     `json:"taxBreakdown"`
	DeliveryFee       float64                 `json:"deliveryFee"`
	Total             float64                 `json:"total"`
	Currency          string                  `json:"currency"`
	OfferKey          string                  `json:"offerKey,omitempty"`
	OfferApplied      bool                    `json:"offerApplied"`
	Deliverable       bool                    `json:"deliverable"`
	Deliverability    []deliverabilityPayload `json:"deliverability"`
	BlockedProductIDs []string                `json:"blockedProductIds"`
}

func buildQuotePayload(quote domain.OrderQuote) quotePayload {
	payload := quotePayload{
		Items:    make([]quoteItemPayload, 0, len(quote.Items)),
		Subtotal: money(quote.Subtotal),
		Tax:      money(quote.Tax),
		TaxBreakdown: taxBreakdownPayload{
			CGST: money(quote.TaxBreakdown.CGST),
			SGST: money(quote.TaxBreakdown.SGST),
			IGST: money(quote.TaxBreakdown.IGST),
		},
		DeliveryFee:       money(quote.DeliveryFee),
		Total:             money(quote.Total),
		Currency:          quote.Currency,
		OfferKey:          quote.OfferKey,
		OfferApplied:      quote.OfferApplied,
		Deliverable:       quote.Deliverable(),
		Deliverability:    make([]deliverabilityPayload, 0, len(quote.Deliverability)),
		BlockedProductIDs: append([]string{}, quote.BlockedProductIDs...),
	}
	for _, item := range quote.Items {
		entry := quoteItemPayload{
			ProductID:          item.ProductID,
			UnitPrice:          money(item.UnitPrice),
			EffectiveUnitPrice: money(item.EffectiveUnitPrice),
			Quantity:           item.Quantity,
			LineSubtotal:       money(item.LineSubtotal),
		}
		if offer := item.AppliedOffer; offer != nil {
			entry.AppliedOffer = &appliedOfferPayload{
				Key:      offer.Key,
				Name:     offer.Name,
				Type:     string(offer.Type),
				Value:    offerValue(domain.Offer{Value: offer.Value}),
				Discount: money(offer.Discount),
			}
		}
		payload.Items = append(payload.Items, entry)
	}
	for _, d := range quote.Deliverability {
		payload.Deliverability = append(payload.Deliverability, deliverabilityPayload{ProductID: d.ProductID, Deliverable: d.Deliverable})
	}
	return payload
}

// offerValue renders numeric offer values as numbers and display text as strings.
func offerValue(offer domain.Offer) any {
	if value, ok := offer.NumericValue(); ok {
		return value.InexactFloat64()
	}
	return strings.TrimSpace(offer.Value)
}

type offerPayload struct {
	Key             string     `json:"key"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Category        string     `json:"category,omitempty"`
	Subcategory     string     `json:"subcategory,omitempty"`
	Value           any        `json:"value"`
	DiscountPercent *float64   `json:"discountPercent,omitempty"`
	Order           int        `json:"order"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

func buildOfferPayloads(offers []domain.Offer) []offerPayload {
	result := make([]offerPayload, 0, len(offers))
	for _, offer := range offers {
		entry := offerPayload{
			Key:         offer.Key,
			Name:        offer.Name,
			Type:        string(offer.Type),
			Category:    offer.Category,
			Subcategory: offer.Subcategory,
			Value:       offerValue(offer),
			Order:       offer.Order,
		}
		if offer.DiscountPercent != nil {
			percent := offer.DiscountPercent.InexactFloat64()
			entry.DiscountPercent = &percent
		}
		if offer.ExpiryDate != nil {
			expires := offer.ExpiryDate.UTC()
			entry.ExpiresAt = &expires
		}
		result = append(result, entry)
	}
	return result
}

type orderPaymentPayload struct {
	Provider     string `json:"provider"`
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Status       string `json:"status"`
}

type orderPayload struct {
	ID          string               `json:"id"`
	UserID      string               `json:"userId"`
	Status      string               `json:"status"`
	Destination destinationRequest   `json:"destination"`
	Quote       quotePayload         `json:"quote"`
	Payment     *orderPaymentPayload `json:"payment,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
	DeliveredAt *time.Time           `json:"deliveredAt,omitempty"`
	CancelledAt *time.Time           `json:"cancelledAt,omitempty"`
}

// buildOrderPayload renders an order; the payment client secret is only exposed to the
// buyer completing checkout.
func buildOrderPayload(order domain.Order, includeClientSecret bool) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Destination: destinationRequest{State: order.Destination.State, Country: order.Destination.Country},
		Quote:       buildQuotePayload(order.Quote),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
		DeliveredAt: utcPtr(order.DeliveredAt),
		CancelledAt: utcPtr(order.CancelledAt),
	}
	if order.Payment != nil {
		payload.Payment = &orderPaymentPayload{
			Provider: order.Payment.Provider,
			IntentID: order.Payment.IntentID,
			Status:   order.Payment.Status,
		}
		if includeClientSecret {
			payload.Payment.ClientSecret = order.Payment.ClientSecret
		}
	}
	return payload
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/storefront-field/quote-api/internal/domain"
)

var testNow = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func TestOfferCatalogResolve(t *testing.T) {
	catalog := NewOfferCatalog(
		domain.Offer{Key: "DIWALI20", Type: domain.OfferTypeDiscountMin, Value: "20", Active: true, ExpiryDate: timePtr(testNow.Add(24 * time.Hour))},
		domain.Offer{Key: "EXPIRED", Type: domain.OfferTypeDiscountMin, Value: "20", Active: true, ExpiryDate: timePtr(testNow.Add(-time.Hour))},
		domain.Offer{Key: "EDGE", Type: domain.OfferTypeDiscountMin, Value: "20", Active: true, ExpiryDate: timePtr(testNow)},
		domain.Offer{Key: "OFF", Type: domain.OfferTypeDiscountMin, Value: "20", Active: false},
		domain.Offer{Key: "  ", Active: true},
	)

	if _, ok := catalog[""]; ok {
		t.Fatalf("expected blank keys to be skipped")
	}

	offer, err := catalog.Resolve(" DIWALI20 ", testNow)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if offer.Key != "DIWALI20" {
		t.Fatalf("unexpected offer %q", offer.Key)
	}

	for _, key := range []string{"EXPIRED", "EDGE", "OFF", "MISSING", ""} {
		if _, err := catalog.Resolve(key, testNow); !errors.Is(err, ErrOfferUnavailable) {
			t.Fatalf("expected ErrOfferUnavailable for %q, got %v", key, err)
		}
	}
}

func TestMatchOffer(t *testing.T) {
	product := domain.Product{ID: "p1", Category: "Sarees", Subcategory: "Silk"}

	cases := []struct {
		name  string
		offer domain.Offer
		want  bool
	}{
		{name: "unscoped", offer: domain.Offer{}, want: true},
		{name: "category match ignores case", offer: domain.Offer{Category: "sarees"}, want: true},
		{name: "category mismatch", offer: domain.Offer{Category: "Kurtas"}, want: false},
		{name: "subcategory match", offer: domain.Offer{Category: "Sarees", Subcategory: " silk "}, want: true},
		{name: "subcategory mismatch", offer: domain.Offer{Subcategory: "Cotton"}, want: false},
		{name: "product listed", offer: domain.Offer{ProductIDs: []string{"p0", "p1"}}, want: true},
		{name: "product not listed", offer: domain.Offer{ProductIDs: []string{"p0"}}, want: false},
		{name: "category matches but product list excludes", offer: domain.Offer{Category: "Sarees", ProductIDs: []string{"p9"}}, want: false},
		{name: "product listed but category differs", offer: domain.Offer{Category: "Kurtas", ProductIDs: []string{"p1"}}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchOffer(tc.offer, product); got != tc.want {
				t.Fatalf("MatchOffer() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSelectOfferPrefersLowestOrder(t *testing.T) {
	product := domain.Product{ID: "p1", Category: "Sarees"}
	low := domain.Offer{Key: "B", Active: true, Order: 1}
	high := domain.Offer{Key: "A", Active: true, Order: 5}

	for _, candidates := range [][]domain.Offer{{low, high}, {high, low}} {
		got, ok := SelectOffer(candidates, product, testNow)
		if !ok {
			t.Fatalf("expected an offer to be selected")
		}
		if got.Key != "B" {
			t.Fatalf("expected lowest order offer, got %q", got.Key)
		}
	}
}

func TestSelectOfferTieBreaksByKey(t *testing.T) {
	product := domain.Product{ID: "p1"}
	first := domain.Offer{Key: "ZETA", Active: true, Order: 2}
	second := domain.Offer{Key: "ALPHA", Active: true, Order: 2}

	got, ok := SelectOffer([]domain.Offer{first, second}, product, testNow)
	if !ok || got.Key != "ALPHA" {
		t.Fatalf("expected ALPHA, got %q (ok=%v)", got.Key, ok)
	}
}

func TestApplicableOffersSkipsUnavailableAndDuplicates(t *testing.T) {
	product := domain.Product{ID: "p1", Category: "Sarees"}
	offers := []domain.Offer{
		{Key: "A", Active: true, Order: 3},
		{Key: "A", Active: true, Order: 0},
		{Key: "B", Active: false, Order: 1},
		{Key: "C", Active: true, Order: 2, ExpiryDate: timePtr(testNow.Add(-time.Minute))},
		{Key: "D", Active: true, Order: 2, Category: "Kurtas"},
		{Key: "E", Active: true, Order: 1},
	}

	got := ApplicableOffers(offers, product, testNow)
	if len(got) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(got))
	}
	if got[0].Key != "E" || got[1].Key != "A" {
		t.Fatalf("unexpected order: %q, %q", got[0].Key, got[1].Key)
	}
	if got[1].Order != 3 {
		t.Fatalf("expected first occurrence of duplicate key to win, got order %d", got[1].Order)
	}
}

func TestSelectOfferNoCandidates(t *testing.T) {
	if _, ok := SelectOffer(nil, domain.Product{ID: "p1"}, testNow); ok {
		t.Fatalf("expected no offer")
	}
}

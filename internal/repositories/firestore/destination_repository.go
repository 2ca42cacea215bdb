package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/storefront-field/quote-api/internal/domain"
	pfirestore "github.com/storefront-field/quote-api/internal/platform/firestore"
	"github.com/storefront-field/quote-api/internal/repositories"
)

const destinationsCollection = "buyerDestinations"

// DestinationRepository stores the last destination per buyer session.
type DestinationRepository struct {
	base  *pfirestore.BaseRepository[destinationDocument]
	clock func() time.Time
}

var _ repositories.DestinationRepository = (*DestinationRepository)(nil)

// NewDestinationRepository constructs a Firestore-backed destination store.
func NewDestinationRepository(provider *pfirestore.Provider) (*DestinationRepository, error) {
	if provider == nil {
		return nil, errors.New("destination repository requires firestore provider")
	}
	return &DestinationRepository{
		base:  pfirestore.NewBaseRepository[destinationDocument](provider, destinationsCollection, nil),
		clock: time.Now,
	}, nil
}

// Load returns the stored destination for the session.
func (r *DestinationRepository) Load(ctx context.Context, sessionID string) (domain.Destination, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return domain.Destination{}, err
	}
	return domain.Destination{State: doc.Data.State, Country: doc.Data.Country}, nil
}

// Save upserts the session's destination.
func (r *DestinationRepository) Save(ctx context.Context, sessionID string, destination domain.Destination) error {
	return r.base.Set(ctx, strings.TrimSpace(sessionID), destinationDocument{
		State:     strings.TrimSpace(destination.State),
		Country:   strings.ToUpper(strings.TrimSpace(destination.Country)),
		UpdatedAt: r.clock().UTC(),
	})
}

type destinationDocument struct {
	State     string    `firestore:"state"`
	Country   string    `firestore:"country"`
	UpdatedAt time.Time `firestore:"updatedAt,omitempty"`
}

package store

import (
	"context"

	"github.com/deckhaven/cardsync/internal/model"
)

// Store is the persistence surface shared by the pipeline load stage, the
// enrichment pass, and the read API.
type Store interface {
	// FindPrices returns the accumulated price history for a card, or nil
	// when the card has never been stored.
	FindPrices(ctx context.Context, uuid string) (model.PriceHistory, error)

	// UpsertCards writes a batch of merged cards. New cards are inserted
	// with their identity fields and the placeholder image; existing cards
	// only have their price tree and updated_at touched.
	UpsertCards(ctx context.Context, cards []model.MergedCard) (int64, error)

	// Get returns a single stored card, or nil when absent.
	Get(ctx context.Context, uuid string) (*model.StoredCard, error)

	// Search returns cards whose folded name contains the folded query,
	// paginated, plus the total match count.
	Search(ctx context.Context, query string, page, pageSize int) ([]model.StoredCard, int64, error)

	// Random returns one arbitrary stored card, or nil when the table is empty.
	Random(ctx context.Context) (*model.StoredCard, error)

	// MissingImages returns up to limit cards still carrying the placeholder
	// image that have a resolvable external id.
	MissingImages(ctx context.Context, limit int) ([]model.Card, error)

	// SetImageURL records a resolved image URL for a card.
	SetImageURL(ctx context.Context, uuid, url string) error

	// Count returns the total number of stored cards.
	Count(ctx context.Context) (int64, error)

	Close()
}

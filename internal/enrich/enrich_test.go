package enrich

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhaven/cardsync/internal/model"
)

// fakeStore implements store.Store with just enough behavior for enrichment.
type fakeStore struct {
	placeholders []model.Card
	images       map[string]string
	setErr       error
}

func newFakeStore(cards ...model.Card) *fakeStore {
	return &fakeStore{placeholders: cards, images: make(map[string]string)}
}

func (f *fakeStore) FindPrices(context.Context, string) (model.PriceHistory, error) {
	return nil, nil
}

func (f *fakeStore) UpsertCards(context.Context, []model.MergedCard) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Get(context.Context, string) (*model.StoredCard, error) { return nil, nil }

func (f *fakeStore) Search(context.Context, string, int, int) ([]model.StoredCard, int64, error) {
	return nil, 0, nil
}

func (f *fakeStore) Random(context.Context) (*model.StoredCard, error) { return nil, nil }

func (f *fakeStore) MissingImages(_ context.Context, limit int) ([]model.Card, error) {
	var out []model.Card
	for _, c := range f.placeholders {
		if f.images[c.UUID] != "" {
			continue
		}
		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) SetImageURL(_ context.Context, uuid, url string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.images[uuid] = url
	return nil
}

func (f *fakeStore) Count(context.Context) (int64, error) { return 0, nil }

func (f *fakeStore) Close() {}

// fakeLookup maps catalog ids to image URLs; absent ids yield ErrNotFound.
type fakeLookup struct {
	urls  map[string]string
	errs  map[string]error
	calls int
}

func (f *fakeLookup) LookupImage(_ context.Context, id string) (string, error) {
	f.calls++
	if err := f.errs[id]; err != nil {
		return "", err
	}
	if url, ok := f.urls[id]; ok {
		return url, nil
	}
	return "", ErrNotFound
}

func card(uuid, scryfallID string) model.Card {
	return model.Card{UUID: uuid, Name: "Card " + uuid, SetCode: "TST", Language: "English", ScryfallID: scryfallID}
}

func TestEnricher_ResolvesImages(t *testing.T) {
	st := newFakeStore(card("uuid-1", "scry-1"), card("uuid-2", "scry-2"))
	lookup := &fakeLookup{urls: map[string]string{
		"scry-1": "https://img.example.com/1.jpg",
		"scry-2": "https://img.example.com/2.jpg",
	}}

	stats, err := New(st, lookup, nil, 10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 2, stats.Resolved)
	assert.Equal(t, "https://img.example.com/1.jpg", st.images["uuid-1"])
	assert.Equal(t, "https://img.example.com/2.jpg", st.images["uuid-2"])
}

func TestEnricher_MissingCardKeepsPlaceholder(t *testing.T) {
	st := newFakeStore(card("uuid-1", "scry-gone"))
	lookup := &fakeLookup{}

	stats, err := New(st, lookup, nil, 10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Missing)
	assert.Zero(t, stats.Resolved)
	assert.Empty(t, st.images)
}

func TestEnricher_LookupFailureSkipsAndContinues(t *testing.T) {
	st := newFakeStore(card("uuid-1", "scry-bad"), card("uuid-2", "scry-2"))
	lookup := &fakeLookup{
		urls: map[string]string{"scry-2": "https://img.example.com/2.jpg"},
		errs: map[string]error{"scry-bad": fmt.Errorf("catalog down")},
	}

	stats, err := New(st, lookup, nil, 10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, "https://img.example.com/2.jpg", st.images["uuid-2"])
}

func TestEnricher_EachCardAttemptedOnce(t *testing.T) {
	// Batch limit of 1 forces multiple fetch rounds; the permanently missing
	// card must not be retried within the pass.
	st := newFakeStore(card("uuid-1", "scry-gone"), card("uuid-2", "scry-2"))
	lookup := &fakeLookup{urls: map[string]string{"scry-2": "https://img.example.com/2.jpg"}}

	stats, err := New(st, lookup, nil, 1).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 2, lookup.calls)
}

func TestEnricher_UsesCache(t *testing.T) {
	st := newFakeStore(card("uuid-1", "scry-1"))
	cache := newTestCache(t, 90)
	require.NoError(t, cache.Put(context.Background(), "scry-1", "https://img.example.com/cached.jpg"))

	lookup := &fakeLookup{} // would return ErrNotFound if consulted
	stats, err := New(st, lookup, cache, 10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.Cached)
	assert.Zero(t, lookup.calls)
	assert.Equal(t, "https://img.example.com/cached.jpg", st.images["uuid-1"])
}

func TestEnricher_BackfillsCache(t *testing.T) {
	st := newFakeStore(card("uuid-1", "scry-1"))
	cache := newTestCache(t, 90)
	lookup := &fakeLookup{urls: map[string]string{"scry-1": "https://img.example.com/1.jpg"}}

	_, err := New(st, lookup, cache, 10).Run(context.Background())
	require.NoError(t, err)

	url, ok, err := cache.Get(context.Background(), "scry-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://img.example.com/1.jpg", url)
}

package etl

import (
	"context"
	"sync"

	"github.com/deckhaven/cardsync/internal/model"
)

// mockStore is an in-memory CardStore capturing upserts for assertions.
type mockStore struct {
	mu       sync.Mutex
	prices   map[string]model.PriceHistory
	upserts  [][]model.MergedCard
	findErr  map[string]error
	flushErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		prices:  make(map[string]model.PriceHistory),
		findErr: make(map[string]error),
	}
}

func (m *mockStore) FindPrices(ctx context.Context, uuid string) (model.PriceHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.findErr[uuid]; err != nil {
		return nil, err
	}
	return m.prices[uuid], nil
}

func (m *mockStore) UpsertCards(ctx context.Context, cards []model.MergedCard) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flushErr != nil {
		return 0, m.flushErr
	}
	batch := make([]model.MergedCard, len(cards))
	copy(batch, cards)
	m.upserts = append(m.upserts, batch)
	for _, c := range cards {
		m.prices[c.UUID] = c.Prices
	}
	return int64(len(cards)), nil
}

func (m *mockStore) upserted() []model.MergedCard {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.MergedCard
	for _, batch := range m.upserts {
		all = append(all, batch...)
	}
	return all
}

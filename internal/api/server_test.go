package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhaven/cardsync/internal/model"
)

// fakeStore serves canned cards for handler tests.
type fakeStore struct {
	cards     map[string]model.StoredCard
	searchErr error
	countErr  error
}

func (f *fakeStore) FindPrices(context.Context, string) (model.PriceHistory, error) {
	return nil, nil
}

func (f *fakeStore) UpsertCards(context.Context, []model.MergedCard) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Get(_ context.Context, uuid string) (*model.StoredCard, error) {
	if c, ok := f.cards[uuid]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeStore) Search(_ context.Context, query string, page, pageSize int) ([]model.StoredCard, int64, error) {
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	folded := model.FoldName(query)
	var out []model.StoredCard
	for _, c := range f.cards {
		if strings.Contains(model.FoldName(c.Name), folded) {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) Random(context.Context) (*model.StoredCard, error) {
	for _, c := range f.cards {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeStore) MissingImages(context.Context, int) ([]model.Card, error) { return nil, nil }

func (f *fakeStore) SetImageURL(context.Context, string, string) error { return nil }

func (f *fakeStore) Count(context.Context) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.cards)), nil
}

func (f *fakeStore) Close() {}

func storedCard(uuid, name string) model.StoredCard {
	return model.StoredCard{
		Card: model.Card{
			UUID:     uuid,
			Name:     name,
			SetCode:  "TST",
			Language: "English",
		},
		ImageURL: model.PlaceholderImage,
		Prices: model.PriceHistory{
			"tcgplayer": {
				Retail: model.FinishMap{"normal": model.DateMap{"2024-01-10": 3.50}},
			},
		},
		UpdatedAt: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T, st *fakeStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(st).Router([]string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHandleSearch(t *testing.T) {
	st := &fakeStore{cards: map[string]model.StoredCard{
		"uuid-1": storedCard("uuid-1", "Lightning Bolt"),
		"uuid-2": storedCard("uuid-2", "Counterspell"),
	}}
	srv := newTestServer(t, st)

	var resp searchResponse
	status := getJSON(t, srv.URL+"/api/cards?q=bolt", &resp)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), resp.Total)
	require.Len(t, resp.Cards, 1)
	assert.Equal(t, "Lightning Bolt", resp.Cards[0].Name)
	require.NotNil(t, resp.Cards[0].Summary.Avg)
	assert.Equal(t, 3.50, *resp.Cards[0].Summary.Avg)
}

func TestHandleSearch_StoreError(t *testing.T) {
	st := &fakeStore{searchErr: fmt.Errorf("db down")}
	srv := newTestServer(t, st)

	var resp map[string]string
	status := getJSON(t, srv.URL+"/api/cards?q=bolt", &resp)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", resp["error"])
}

func TestHandleGet(t *testing.T) {
	st := &fakeStore{cards: map[string]model.StoredCard{
		"uuid-1": storedCard("uuid-1", "Lightning Bolt"),
	}}
	srv := newTestServer(t, st)

	var resp cardDetail
	status := getJSON(t, srv.URL+"/api/cards/uuid-1", &resp)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Lightning Bolt", resp.Name)
	require.Len(t, resp.Quotes, 1)
	assert.Equal(t, "tcgplayer", resp.Quotes[0].Vendor)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "2024-01-10", resp.History[0].Date)
}

func TestHandleGet_HistoryOrdered(t *testing.T) {
	card := storedCard("uuid-1", "Lightning Bolt")
	card.Prices["tcgplayer"].Retail["normal"]["2024-01-03"] = 3.00
	st := &fakeStore{cards: map[string]model.StoredCard{"uuid-1": card}}
	srv := newTestServer(t, st)

	var resp cardDetail
	status := getJSON(t, srv.URL+"/api/cards/uuid-1", &resp)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, resp.History, 2)
	assert.Equal(t, "2024-01-03", resp.History[0].Date)
	assert.Equal(t, "2024-01-10", resp.History[1].Date)
	require.NotNil(t, resp.History[1].Retail)
	assert.Equal(t, 3.50, *resp.History[1].Retail)
}

func TestHandleGet_NotFound(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	var resp map[string]string
	status := getJSON(t, srv.URL+"/api/cards/uuid-unknown", &resp)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "card not found", resp["error"])
}

func TestHandleRandom(t *testing.T) {
	st := &fakeStore{cards: map[string]model.StoredCard{
		"uuid-1": storedCard("uuid-1", "Lightning Bolt"),
	}}
	srv := newTestServer(t, st)

	var resp cardDetail
	status := getJSON(t, srv.URL+"/api/cards/random", &resp)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "uuid-1", resp.UUID)
}

func TestHandleRandom_EmptyStore(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	var resp map[string]string
	status := getJSON(t, srv.URL+"/api/cards/random", &resp)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHandleHealth(t *testing.T) {
	st := &fakeStore{cards: map[string]model.StoredCard{
		"uuid-1": storedCard("uuid-1", "Lightning Bolt"),
	}}
	srv := newTestServer(t, st)

	var resp map[string]any
	status := getJSON(t, srv.URL+"/health", &resp)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(1), resp["cards"])
}

func TestHandleHealth_StoreUnavailable(t *testing.T) {
	srv := newTestServer(t, &fakeStore{countErr: fmt.Errorf("connection refused")})

	var resp map[string]any
	status := getJSON(t, srv.URL+"/health", &resp)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unavailable", resp["status"])
}

func TestServe_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(&fakeStore{}).Serve(ctx, "127.0.0.1:0", []string{"*"})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

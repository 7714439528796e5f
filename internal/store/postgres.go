package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/deckhaven/cardsync/internal/db"
	"github.com/deckhaven/cardsync/internal/model"
)

// PostgresStore implements Store on top of a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// New wraps an existing pool. Close is a no-op; the caller owns the pool.
func New(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

// Open connects to Postgres and returns a store that owns the connection.
func Open(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g. the run log).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Close() {
	s.closeFn()
}

func (s *PostgresStore) FindPrices(ctx context.Context, uuid string) (model.PriceHistory, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		"SELECT prices FROM card_data.cards WHERE uuid = $1", uuid,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: find prices for %s", uuid)
	}

	var history model.PriceHistory
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, eris.Wrapf(err, "store: decode price history for %s", uuid)
	}
	return history, nil
}

// upsertCfg keeps identity fields and image_url insert-only: a re-run never
// overwrites a resolved image URL or renames a card, it only grows the price
// tree.
var upsertCfg = db.UpsertConfig{
	Table: "card_data.cards",
	Columns: []string{
		"uuid", "name", "name_folded", "set_code", "language",
		"scryfall_id", "purchase_urls", "prices", "updated_at",
	},
	ConflictKeys: []string{"uuid"},
	UpdateCols:   []string{"prices", "updated_at"},
}

func (s *PostgresStore) UpsertCards(ctx context.Context, cards []model.MergedCard) (int64, error) {
	if len(cards) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(cards))
	for _, c := range cards {
		prices, err := json.Marshal(c.Prices)
		if err != nil {
			return 0, eris.Wrapf(err, "store: encode price history for %s", c.UUID)
		}

		var urls []byte
		if len(c.PurchaseURLs) > 0 {
			if urls, err = json.Marshal(c.PurchaseURLs); err != nil {
				return 0, eris.Wrapf(err, "store: encode purchase urls for %s", c.UUID)
			}
		}

		var scryfallID any
		if c.ScryfallID != "" {
			scryfallID = c.ScryfallID
		}

		rows = append(rows, []any{
			c.UUID, c.Name, model.FoldName(c.Name), c.SetCode, c.Language,
			scryfallID, urls, prices, now,
		})
	}

	return db.BulkUpsert(ctx, s.pool, upsertCfg, rows)
}

const cardColumns = `uuid, name, set_code, language,
	COALESCE(scryfall_id, ''), COALESCE(purchase_urls, '{}'::jsonb),
	image_url, prices, updated_at`

// scanCard reads one row in cardColumns order.
func scanCard(row pgx.Row) (*model.StoredCard, error) {
	var (
		card       model.StoredCard
		rawURLs    []byte
		rawHistory []byte
	)
	err := row.Scan(
		&card.UUID, &card.Name, &card.SetCode, &card.Language,
		&card.ScryfallID, &rawURLs,
		&card.ImageURL, &rawHistory, &card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawURLs, &card.PurchaseURLs); err != nil {
		return nil, eris.Wrapf(err, "store: decode purchase urls for %s", card.UUID)
	}
	if err := json.Unmarshal(rawHistory, &card.Prices); err != nil {
		return nil, eris.Wrapf(err, "store: decode price history for %s", card.UUID)
	}
	return &card, nil
}

func (s *PostgresStore) Get(ctx context.Context, uuid string) (*model.StoredCard, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+cardColumns+" FROM card_data.cards WHERE uuid = $1", uuid)
	card, err := scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get card %s", uuid)
	}
	return card, nil
}

func (s *PostgresStore) Search(ctx context.Context, query string, page, pageSize int) ([]model.StoredCard, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	pattern := "%" + model.FoldName(query) + "%"

	var total int64
	err := s.pool.QueryRow(ctx,
		"SELECT count(*) FROM card_data.cards WHERE name_folded LIKE $1", pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "store: count search matches")
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+cardColumns+` FROM card_data.cards
		WHERE name_folded LIKE $1
		ORDER BY name, set_code, uuid
		LIMIT $2 OFFSET $3`,
		pattern, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, eris.Wrap(err, "store: search cards")
	}
	defer rows.Close()

	var cards []model.StoredCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "store: scan search row")
		}
		cards = append(cards, *card)
	}
	return cards, total, rows.Err()
}

func (s *PostgresStore) Random(ctx context.Context) (*model.StoredCard, error) {
	// Full-sort random is fine at this table's scale (one row per printing).
	row := s.pool.QueryRow(ctx,
		"SELECT "+cardColumns+" FROM card_data.cards ORDER BY random() LIMIT 1")
	card, err := scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: random card")
	}
	return card, nil
}

func (s *PostgresStore) MissingImages(ctx context.Context, limit int) ([]model.Card, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT uuid, name, set_code, scryfall_id FROM card_data.cards
		WHERE image_url = $1 AND scryfall_id IS NOT NULL
		ORDER BY uuid
		LIMIT $2`,
		model.PlaceholderImage, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: query cards missing images")
	}
	defer rows.Close()

	var cards []model.Card
	for rows.Next() {
		var c model.Card
		if err := rows.Scan(&c.UUID, &c.Name, &c.SetCode, &c.ScryfallID); err != nil {
			return nil, eris.Wrap(err, "store: scan missing-image row")
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (s *PostgresStore) SetImageURL(ctx context.Context, uuid, url string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE card_data.cards SET image_url = $1, updated_at = now() WHERE uuid = $2",
		url, uuid)
	if err != nil {
		return eris.Wrapf(err, "store: set image url for %s", uuid)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: set image url: card %s not found", uuid)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM card_data.cards").Scan(&total); err != nil {
		return 0, eris.Wrap(err, "store: count cards")
	}
	return total, nil
}

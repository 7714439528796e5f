package enrich

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Cache is a local SQLite lookup cache. Catalog responses are effectively
// immutable, so a long TTL keeps repeat passes off the network entirely.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS image_cache (
	catalog_id TEXT PRIMARY KEY,
	image_url  TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// OpenCache opens (creating if needed) the cache database at path.
func OpenCache(path string, ttlDays int) (*Cache, error) {
	if ttlDays <= 0 {
		ttlDays = 90
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "enrich: create cache dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: open cache")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "enrich: exec %s", pragma)
		}
	}
	if _, err := db.Exec(cacheMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "enrich: migrate cache")
	}

	return &Cache{db: db, ttl: time.Duration(ttlDays) * 24 * time.Hour}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached image URL for a catalog id, or ok=false when absent
// or expired.
func (c *Cache) Get(ctx context.Context, catalogID string) (string, bool, error) {
	var (
		url      string
		cachedAt time.Time
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT image_url, cached_at FROM image_cache WHERE catalog_id = ?", catalogID,
	).Scan(&url, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "enrich: cache get")
	}
	if time.Since(cachedAt) > c.ttl {
		return "", false, nil
	}
	return url, true, nil
}

// Put stores or refreshes the cached image URL for a catalog id.
func (c *Cache) Put(ctx context.Context, catalogID, url string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO image_cache (catalog_id, image_url, cached_at) VALUES (?, ?, ?)
		ON CONFLICT (catalog_id) DO UPDATE SET image_url = excluded.image_url, cached_at = excluded.cached_at`,
		catalogID, url, time.Now().UTC())
	return eris.Wrap(err, "enrich: cache put")
}

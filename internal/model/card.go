// Package model defines the card and price-history types shared across the
// pipeline, the store, and the read API.
package model

import "time"

// PlaceholderImage is the image URL a card carries until the enrichment pass
// resolves a real one. Cleanup and re-runs must never overwrite a resolved URL
// with this sentinel.
const PlaceholderImage = "/images/card-back.jpg"

// Card is the minimal per-printing record kept by the filter stage. One card
// per NDJSON line; immutable after filtering.
type Card struct {
	UUID         string            `json:"uuid"`
	Name         string            `json:"name"`
	SetCode      string            `json:"setCode"`
	Language     string            `json:"language"`
	ScryfallID   string            `json:"scryfallId,omitempty"`
	PurchaseURLs map[string]string `json:"purchaseUrls,omitempty"`
}

// Valid reports whether the card carries every field the pipeline requires.
func (c Card) Valid() bool {
	return c.UUID != "" && c.Name != "" && c.SetCode != ""
}

// MergedCard is a Card joined with its per-run price snapshot. Exists only for
// uuids present on both sides of the merge-join.
type MergedCard struct {
	Card
	Prices PriceHistory `json:"prices"`
}

// StoredCard is the persisted document: a merged card whose price tree has
// accumulated every date ever observed across runs.
type StoredCard struct {
	Card
	ImageURL  string       `json:"imageUrl"`
	Prices    PriceHistory `json:"prices"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

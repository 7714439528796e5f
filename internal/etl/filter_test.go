package etl

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhaven/cardsync/internal/model"
)

const identifiersFeed = `{
	"meta": {"version": "5.2.2", "date": "2024-06-01"},
	"data": {
		"uuid-1": {"name": "Lightning Bolt", "setCode": "LEA", "language": "English",
			"identifiers": {"scryfallId": "sf-1"}, "purchaseUrls": {"tcgplayer": "https://example.com/1"}},
		"uuid-2": {"name": "Contre-sort", "setCode": "LEA", "language": "French"},
		"uuid-3": {"name": "Black Lotus", "setCode": "LEA", "language": "English",
			"identifiers": {"scryfallId": "sf-3"}},
		"uuid-4": {"name": "Gegenzauber", "setCode": "LEA", "language": "German"},
		"uuid-5": {"name": "Ancestral Recall", "setCode": "LEA", "language": "English"}
	}
}`

func TestFilter_KeepsCanonicalLanguageOnly(t *testing.T) {
	env := testEnv(t)
	writeArtifact(t, env, artifactIdentifiersFeed, identifiersFeed)

	result, err := (&Filter{}).Run(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.Rows)
	assert.Equal(t, int64(2), result.Skipped)

	lines := readArtifactLines(t, env, artifactCards)
	require.Len(t, lines, 3)

	var first model.Card
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "uuid-1", first.UUID)
	assert.Equal(t, "Lightning Bolt", first.Name)
	assert.Equal(t, "LEA", first.SetCode)
	assert.Equal(t, "sf-1", first.ScryfallID)
	assert.Equal(t, "https://example.com/1", first.PurchaseURLs["tcgplayer"])
}

func TestFilter_DropsIncompleteEntries(t *testing.T) {
	env := testEnv(t)
	writeArtifact(t, env, artifactIdentifiersFeed, `{
		"data": {
			"uuid-1": {"name": "", "setCode": "LEA", "language": "English"},
			"uuid-2": {"name": "Real Card", "setCode": "", "language": "English"},
			"uuid-3": {"name": "Kept Card", "setCode": "SET", "language": "English"}
		}
	}`)

	result, err := (&Filter{}).Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Rows)
	assert.Equal(t, int64(2), result.Skipped)
}

func TestFilter_MalformedFeedIsFatal(t *testing.T) {
	env := testEnv(t)
	writeArtifact(t, env, artifactIdentifiersFeed, `{"data": {"uuid-1": {"name"`)

	_, err := (&Filter{}).Run(context.Background(), env)
	require.Error(t, err)
}

func TestFilter_MissingFeedIsFatal(t *testing.T) {
	env := testEnv(t)
	_, err := (&Filter{}).Run(context.Background(), env)
	require.Error(t, err)
}

func TestFilter_EmptyData(t *testing.T) {
	env := testEnv(t)
	writeArtifact(t, env, artifactIdentifiersFeed, `{"meta": {}, "data": {}}`)

	result, err := (&Filter{}).Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Rows)
	assert.Empty(t, readArtifactLines(t, env, artifactCards))
}

package etl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roundTripIdentifiers = `{
	"data": {
		"uuid-b": {"name": "Beta Card", "setCode": "SET", "language": "English"},
		"uuid-a": {"name": "Alpha Card", "setCode": "SET", "language": "English"},
		"uuid-x": {"name": "Excluded", "setCode": "SET", "language": "Japanese"}
	}
}`

const roundTripPrices = `{
	"data": {
		"uuid-a": {"tcgplayer": {"retail": {"normal": {"2024-01-01": 1, "2024-01-02": 2}}}},
		"uuid-b": {"cardkingdom": {"buylist": {"foil": {"2024-01-02": 9}}}},
		"uuid-z": {"tcgplayer": {"retail": {"normal": {"2024-01-02": 4}}}}
	}
}`

// Runs the file stages plus load end to end, twice, against the same store.
// The database state after run 2 must be identical to run 1: upserts are
// keyed, history merges are additive, and nothing duplicates.
func TestPipeline_RoundTripIdempotent(t *testing.T) {
	store := newMockStore()

	runOnce := func() {
		env := testEnv(t)
		env.Store = store
		writeArtifact(t, env, artifactIdentifiersFeed, roundTripIdentifiers)
		writeArtifact(t, env, artifactPricesFeed, roundTripPrices)

		for _, stage := range []Stage{
			&Filter{}, &Extract{}, &SortCards{}, &SortSnapshots{}, &Merge{}, &Load{},
		} {
			_, err := stage.Run(context.Background(), env)
			require.NoError(t, err, "stage %s", stage.Name())
		}
	}

	runOnce()
	after1 := store.upserted()
	state1 := map[string]any{}
	for uuid, prices := range store.prices {
		state1[uuid] = prices
	}

	runOnce()
	state2 := map[string]any{}
	for uuid, prices := range store.prices {
		state2[uuid] = prices
	}

	// Inner join: uuid-x (wrong language) and uuid-z (not filtered) never land.
	require.Len(t, after1, 2)
	assert.Contains(t, state1, "uuid-a")
	assert.Contains(t, state1, "uuid-b")
	assert.NotContains(t, state1, "uuid-x")
	assert.NotContains(t, state1, "uuid-z")

	assert.Equal(t, state1, state2)

	// Snapshot reduced the two dates to the single latest before storage.
	normal := store.prices["uuid-a"]["tcgplayer"].Retail["normal"]
	require.Len(t, normal, 1)
	assert.InDelta(t, 2, normal["2024-01-02"], 0.001)
}

package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	Name string `json:"name"`
}

func collect[T any](t *testing.T, input string) ([]Entry[T], error) {
	t.Helper()
	outCh, errCh := DecodeJSONMap[T](context.Background(), strings.NewReader(input))

	var entries []Entry[T]
	for e := range outCh {
		entries = append(entries, e)
	}
	return entries, <-errCh
}

func TestDecodeJSONMap_Basic(t *testing.T) {
	input := `{
		"meta": {"version": "5.2.2", "date": "2024-06-01"},
		"data": {
			"uuid-a": {"name": "Card A"},
			"uuid-b": {"name": "Card B"}
		}
	}`

	entries, err := collect[testEntry](t, input)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "uuid-a", entries[0].Key)
	assert.Equal(t, "Card A", entries[0].Value.Name)
	assert.Equal(t, "uuid-b", entries[1].Key)
}

func TestDecodeJSONMap_EmptyData(t *testing.T) {
	entries, err := collect[testEntry](t, `{"meta": {}, "data": {}}`)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecodeJSONMap_NoDataKey(t *testing.T) {
	entries, err := collect[testEntry](t, `{"meta": {"version": "5"}}`)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecodeJSONMap_MalformedTopLevel(t *testing.T) {
	_, err := collect[testEntry](t, `["not", "an", "object"]`)
	require.Error(t, err)
}

func TestDecodeJSONMap_MalformedEntry(t *testing.T) {
	input := `{"data": {"uuid-a": "not an object`
	_, err := collect[testEntry](t, input)
	require.Error(t, err)
}

func TestDecodeJSONMap_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := `{"data": {"a": {"name": "A"}, "b": {"name": "B"}}}`
	outCh, errCh := DecodeJSONMap[testEntry](ctx, strings.NewReader(input))
	for range outCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestDecodeJSONObject(t *testing.T) {
	obj, err := DecodeJSONObject[testEntry](strings.NewReader(`{"name": "X"}`))
	require.NoError(t, err)
	assert.Equal(t, "X", obj.Name)

	_, err = DecodeJSONObject[testEntry](strings.NewReader(`{notjson`))
	require.Error(t, err)
}

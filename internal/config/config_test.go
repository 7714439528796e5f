package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://mtgjson.com/api/v5/AllIdentifiers.json", cfg.Feeds.IdentifiersURL)
	assert.Equal(t, "https://mtgjson.com/api/v5/AllPrices.json", cfg.Feeds.PricesURL)
	assert.Equal(t, 3, cfg.Feeds.MaxRetries)
	assert.Equal(t, "data", cfg.Pipeline.WorkDir)
	assert.Equal(t, "English", cfg.Pipeline.Language)
	assert.Equal(t, 500, cfg.Pipeline.BatchSize)
	assert.Equal(t, 5000, cfg.Pipeline.ProgressInterval)
	assert.Equal(t, 2_000_000, cfg.Pipeline.SortMemoryLines)
	assert.Equal(t, 250_000, cfg.Pipeline.SortChunkLines)
	assert.Equal(t, "https://api.scryfall.com", cfg.Enrich.BaseURL)
	assert.Equal(t, 3, cfg.Enrich.MaxAttempts)
	assert.Equal(t, 90, cfg.Enrich.CacheTTLDay)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  database_url: postgres://localhost/cards
log:
  level: debug
  format: console
pipeline:
  language: Japanese
  batch_size: 100
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/cards", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "Japanese", cfg.Pipeline.Language)
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
	// Defaults still apply for unset keys.
	assert.Equal(t, 500, cfg.Enrich.BatchLimit)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CARDSYNC_STORE_DATABASE_URL", "postgres://env/cards")
	t.Setenv("CARDSYNC_PIPELINE_WORK_DIR", "/tmp/cardsync")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/cards", cfg.Store.DatabaseURL)
	assert.Equal(t, "/tmp/cardsync", cfg.Pipeline.WorkDir)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	require.Error(t, err)
}

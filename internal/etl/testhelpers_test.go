package etl

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deckhaven/cardsync/internal/config"
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	dir := t.TempDir()
	return &Env{
		Cfg: &config.Config{
			Pipeline: config.PipelineConfig{
				WorkDir:          dir,
				Language:         "English",
				BatchSize:        500,
				ProgressInterval: 5000,
				SortMemoryLines:  1000,
				SortChunkLines:   100,
			},
		},
		WorkDir: dir,
	}
}

func writeArtifact(t *testing.T, env *Env, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(env.path(name), []byte(content), 0o644))
}

func readArtifactLines(t *testing.T, env *Env, name string) []string {
	t.Helper()
	data, err := os.ReadFile(env.path(name))
	require.NoError(t, err)
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func writeArtifactFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readLinesFile(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

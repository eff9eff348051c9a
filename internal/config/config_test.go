package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("EVINSIGHTS_CHAT_MODEL", "openai/gpt-4o-mini")
	t.Setenv("EVINSIGHTS_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Chdir(t.TempDir())

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", c.ChatModel)
	assert.Equal(t, "https://openrouter.ai/api/v1", c.BaseURL)
	assert.Equal(t, 2, c.RetrievalTopK)
	assert.Equal(t, 0.2, c.TestRatio)
	assert.Equal(t, int64(42), c.RandomState)
	assert.Equal(t, "sk-or-test", c.APIKey)
	assert.Equal(t, filepath.Join(home, ".evinsights", "cache"), c.CacheDir)
}

func TestSaveThenLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	c := &Global{DatasetPath: "ev.csv", ChatModel: "m", RetrievalTopK: 4, ForestTrees: 10, CacheDir: "/tmp/c"}
	require.NoError(t, Save(c, path))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ev.csv", got.DatasetPath)
	assert.Equal(t, 4, got.RetrievalTopK)
	assert.Equal(t, 10, got.ForestTrees)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EVINSIGHTS_FOREST_TREES=7\n"), 0o644))
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("EVINSIGHTS_FOREST_TREES") })

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, c.ForestTrees)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCacheSettings(t *testing.T) {
	t.Setenv("COST_CACHE_IMPLEMENTATION", "Redis")
	t.Setenv("COST_CACHE_TTL", "0")
	t.Setenv("FETCH_TIMEOUT", "10m")

	cfg := Load()
	assert.Equal(t, CacheRedis, cfg.Cache.Implementation)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Fetch.SourceTimeout)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COST_CACHE_IMPLEMENTATION", "")
	t.Setenv("COST_CACHE_TTL", "")

	cfg := Load()
	assert.Equal(t, CacheMemory, cfg.Cache.Implementation)
	assert.Equal(t, 900*time.Second, cfg.Cache.TTL)
	assert.Equal(t, cfg.DBName, DatabaseConfig(cfg).Name)
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: prod
    base_folder: https://acct.blob.core.windows.net/exports/prod
  - name: dev
    base_folder: https://acct.blob.core.windows.net/exports/dev/
    active: false
`), 0o600))

	holder, err := LoadSources(path, nil)
	require.NoError(t, err)

	defs := holder.Get()
	require.Len(t, defs, 2)
	assert.Equal(t, "prod", defs[0].Name)
	assert.True(t, defs[0].IsActive())
	assert.False(t, defs[1].IsActive())
}

func TestLoadSourcesMissingFile(t *testing.T) {
	holder, err := LoadSources(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.NoError(t, err)
	assert.Empty(t, holder.Get())
}

func TestLoadSourcesRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: prod
    base_folder: https://a/b
  - name: prod
    base_folder: https://a/c
`), 0o600))

	_, err := LoadSources(path, nil)
	assert.Error(t, err)
}

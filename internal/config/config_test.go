// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MAPSHEETS_METADATA", "/tmp/metadata.json")
	t.Setenv("MAPSHEETS_TILE_SERVERS", "https://tiles.example.com/{z}/{x}/{y}.png")
}

func TestLoadDefaultsWithEnvOverride(t *testing.T) {
	validEnv(t)
	t.Setenv("MAPSHEETS_ZOOM", "16")
	t.Setenv("MAPSHEETS_RATE", "5.5")
	t.Setenv("MAPSHEETS_CACHE_TTL", "1h")

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Zoom)
	assert.Equal(t, 5.5, cfg.RatePerSecond)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, ":8080", cfg.Listen) // default untouched
	assert.Equal(t, "/tmp/metadata.json", cfg.MetadataPath)
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
listen: ":9999"
metadata_path: /from/file/metadata.json
tile_servers:
  - "https://a.example.com/{z}/{x}/{y}.png"
zoom: 10
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("MAPSHEETS_ZOOM", "12") // env wins over file

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "/from/file/metadata.json", cfg.MetadataPath)
	assert.Equal(t, 12, cfg.Zoom)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing metadata", func(c *AppConfig) { c.MetadataPath = "" }},
		{"no tile servers", func(c *AppConfig) { c.TileServers = nil }},
		{"template without placeholders", func(c *AppConfig) { c.TileServers = []string{"https://example.com/tiles"} }},
		{"zoom out of range", func(c *AppConfig) { c.Zoom = 30 }},
		{"zero concurrency", func(c *AppConfig) { c.Concurrency = 0 }},
		{"negative retries", func(c *AppConfig) { c.Retries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.MetadataPath = "/tmp/metadata.json"
			cfg.TileServers = []string{"https://tiles.example.com/{z}/{x}/{y}.png"}
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseStringListSplitsAndTrims(t *testing.T) {
	t.Setenv("MAPSHEETS_TEST_LIST", " a , b ,, c ")
	got := ParseStringList("MAPSHEETS_TEST_LIST", nil)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got = ParseStringList("MAPSHEETS_TEST_LIST_UNSET", []string{"d"})
	assert.Equal(t, []string{"d"}, got)
}

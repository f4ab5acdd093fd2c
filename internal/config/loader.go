// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader resolves configuration from defaults, an optional YAML file and
// the environment, in increasing order of precedence.
type Loader struct {
	path    string
	version string
}

// NewLoader returns a Loader for the given config file path. An empty path
// skips the file layer.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load resolves and validates the effective configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.path != "" {
		data, err := os.ReadFile(l.path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return AppConfig{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse config file %s: %w", l.path, err)
		}
	}

	applyEnv(&cfg)
	cfg.Version = l.version

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Listen = ParseString("MAPSHEETS_LISTEN", cfg.Listen)
	cfg.DataDir = ParseString("MAPSHEETS_DATA", cfg.DataDir)
	cfg.MetadataPath = ParseString("MAPSHEETS_METADATA", cfg.MetadataPath)
	cfg.TileServers = ParseStringList("MAPSHEETS_TILE_SERVERS", cfg.TileServers)
	cfg.Zoom = ParseInt("MAPSHEETS_ZOOM", cfg.Zoom)
	cfg.Concurrency = ParseInt("MAPSHEETS_CONCURRENCY", cfg.Concurrency)
	cfg.RatePerSecond = ParseFloat("MAPSHEETS_RATE", cfg.RatePerSecond)
	cfg.CacheDir = ParseString("MAPSHEETS_CACHE_DIR", cfg.CacheDir)
	cfg.CacheTTL = ParseDuration("MAPSHEETS_CACHE_TTL", cfg.CacheTTL)
	cfg.RequestTimeout = ParseDuration("MAPSHEETS_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.Retries = ParseInt("MAPSHEETS_RETRIES", cfg.Retries)
	cfg.LogLevel = ParseString("MAPSHEETS_LOG_LEVEL", cfg.LogLevel)
}

// SPDX-License-Identifier: MIT

// Package config loads daemon configuration with precedence
// environment > file > defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AppConfig is the effective daemon configuration.
type AppConfig struct {
	// Listen is the HTTP listen address of the API server.
	Listen string `yaml:"listen"`

	// DataDir is the directory for downloaded sheets and the metadata TSV.
	DataDir string `yaml:"data_dir"`

	// MetadataPath points to the GeoJSON sheet index.
	MetadataPath string `yaml:"metadata_path"`

	// TileServers are URL templates with {x}/{y}/{z} (and optional {s})
	// placeholders. Tiles rotate across servers.
	TileServers []string `yaml:"tile_servers"`

	// Zoom is the tile zoom level used when building sheet tile boxes.
	Zoom int `yaml:"zoom"`

	// Concurrency bounds parallel tile fetches per job.
	Concurrency int `yaml:"concurrency"`

	// RatePerSecond throttles tile requests across all workers. Zero
	// disables throttling.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// CacheDir is the badger tile cache location. Empty disables caching.
	CacheDir string `yaml:"cache_dir"`

	// CacheTTL bounds how long cached tiles are reused.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// RequestTimeout is the per-tile HTTP timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Retries is the number of additional attempts per tile.
	Retries int `yaml:"retries"`

	LogLevel string `yaml:"log_level"`
	Version  string `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Listen:         ":8080",
		DataDir:        "./maps",
		Zoom:           14,
		Concurrency:    6,
		RatePerSecond:  20,
		CacheDir:       "./tile-cache",
		CacheTTL:       7 * 24 * time.Hour,
		RequestTimeout: 30 * time.Second,
		Retries:        2,
		LogLevel:       "info",
	}
}

// Validation errors are typed so callers can distinguish operator mistakes
// from runtime failures.
var (
	ErrNoMetadata    = errors.New("metadata_path is required")
	ErrNoTileServers = errors.New("at least one tile server is required")
)

// Validate checks the configuration for operator errors.
func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.MetadataPath) == "" {
		return ErrNoMetadata
	}
	if len(c.TileServers) == 0 {
		return ErrNoTileServers
	}
	for _, ts := range c.TileServers {
		if !strings.Contains(ts, "{x}") || !strings.Contains(ts, "{y}") || !strings.Contains(ts, "{z}") {
			return fmt.Errorf("tile server %q missing {x}/{y}/{z} placeholders", ts)
		}
	}
	if c.Zoom < 0 || c.Zoom > 22 {
		return fmt.Errorf("zoom %d out of range [0,22]", c.Zoom)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must not be negative, got %v", c.RatePerSecond)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	return nil
}

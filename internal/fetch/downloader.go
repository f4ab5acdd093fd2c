// SPDX-License-Identifier: MIT

// Package fetch downloads map tiles from slippy-map tile servers with
// bounded concurrency, retries and a shared rate limit.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mapsheets/mapsheets/internal/log"
	"github.com/mapsheets/mapsheets/internal/metrics"
	"github.com/mapsheets/mapsheets/internal/tiles"
)

// subdomains rotate into the optional {s} placeholder.
var subdomains = []string{"a", "b", "c"}

// maxTileBytes caps a single tile response. Tiles are small; anything
// larger is a misbehaving server.
const maxTileBytes = 8 << 20

// ErrNotImage is returned when a tile server responds with something that
// does not sniff as an image.
var ErrNotImage = errors.New("response is not an image")

// Options configures a Downloader.
type Options struct {
	// Timeout bounds a single tile request.
	Timeout time.Duration
	// Retries is the number of additional attempts per tile.
	Retries int
	// RatePerSecond throttles requests across all workers; zero disables.
	RatePerSecond float64
	// Concurrency bounds parallel fetches in FetchBox.
	Concurrency int
	// Cache holds previously fetched tiles; nil disables caching.
	Cache *Cache
}

// Downloader fetches tiles from one or more URL templates, rotating
// servers per tile.
type Downloader struct {
	servers []string
	keybase string
	client  *http.Client
	cache   *Cache
	limiter *rate.Limiter
	retries int
	workers int
	next    atomic.Uint64
}

// New builds a Downloader for the given URL templates. Templates use
// {x}/{y}/{z} placeholders and optionally {s} for subdomain rotation.
func New(servers []string, opts Options) (*Downloader, error) {
	if len(servers) == 0 {
		return nil, errors.New("at least one tile server is required")
	}
	for _, s := range servers {
		if !strings.Contains(s, "{x}") || !strings.Contains(s, "{y}") || !strings.Contains(s, "{z}") {
			return nil, fmt.Errorf("tile server %q missing {x}/{y}/{z} placeholders", s)
		}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}

	d := &Downloader{
		servers: servers,
		keybase: cacheKeyBase(servers),
		client:  &http.Client{Timeout: timeout},
		cache:   opts.Cache,
		retries: opts.Retries,
		workers: workers,
	}
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return d, nil
}

// cacheKeyBase derives a stable cache namespace from the server set, so
// tiles from different series never collide.
func cacheKeyBase(servers []string) string {
	sum := sha256.Sum256([]byte(strings.Join(servers, "\n")))
	return "tile:" + hex.EncodeToString(sum[:8]) + ":"
}

// URL renders the template for a tile, rotating servers and subdomains.
func (d *Downloader) URL(idx tiles.Index) string {
	n := d.next.Add(1)
	tmpl := d.servers[int(n)%len(d.servers)]
	r := strings.NewReplacer(
		"{x}", strconv.Itoa(idx.X),
		"{y}", strconv.Itoa(idx.Y),
		"{z}", strconv.Itoa(idx.Z),
		"{s}", subdomains[int(n)%len(subdomains)],
	)
	return r.Replace(tmpl)
}

// Fetch returns the bytes of a single tile, consulting the cache first.
func (d *Downloader) Fetch(ctx context.Context, idx tiles.Index) ([]byte, error) {
	logger := log.FromContext(ctx)

	key := d.keybase + idx.String()
	if d.cache != nil {
		if data, ok, err := d.cache.Get(key); err == nil && ok {
			return data, nil
		} else if err != nil {
			logger.Warn().Err(err).Str("tile", idx.String()).Msg("tile cache read failed")
		}
	}

	data, err := d.fetchWithRetry(ctx, idx)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if err := d.cache.Put(key, data); err != nil {
			logger.Warn().Err(err).Str("tile", idx.String()).Msg("tile cache write failed")
		}
	}
	return data, nil
}

func (d *Downloader) fetchWithRetry(ctx context.Context, idx tiles.Index) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt*500) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		data, err := d.fetchOnce(ctx, idx)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("tile %s failed after %d retries: %w", idx, d.retries, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, idx tiles.Index) ([]byte, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	url := d.URL(idx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := d.client.Do(req)
	if err != nil {
		metrics.IncTileFetchFailure("http")
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		metrics.IncTileFetchFailure("status")
		return nil, fmt.Errorf("%s: unexpected status %d", url, res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxTileBytes))
	if err != nil {
		metrics.IncTileFetchFailure("http")
		return nil, err
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		metrics.IncTileFetchFailure("decode")
		return nil, fmt.Errorf("%s: %w", url, ErrNotImage)
	}

	metrics.IncTileDownloaded(len(data))
	return data, nil
}

// BoxResult holds the outcome of fetching a tile box.
type BoxResult struct {
	Tiles  map[tiles.Index][]byte
	Failed []tiles.Index
}

// FetchBox downloads every tile of a box with bounded concurrency. In
// strict mode the first failure cancels the remaining fetches; otherwise
// failures are collected in BoxResult.Failed.
func (d *Downloader) FetchBox(ctx context.Context, box tiles.Box, strict bool) (*BoxResult, error) {
	logger := log.FromContext(ctx)
	result := &BoxResult{Tiles: make(map[tiles.Index][]byte, box.Count())}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	box.Each(func(idx tiles.Index) bool {
		g.Go(func() error {
			data, err := d.Fetch(ctx, idx)
			if err != nil {
				if strict {
					return err
				}
				mu.Lock()
				result.Failed = append(result.Failed, idx)
				mu.Unlock()
				logger.Warn().Err(err).Str("tile", idx.String()).Msg("tile fetch failed")
				return nil
			}
			mu.Lock()
			result.Tiles[idx] = data
			mu.Unlock()
			return nil
		})
		return ctx.Err() == nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

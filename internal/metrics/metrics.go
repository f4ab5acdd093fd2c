// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus instrumentation for the download
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tilesDownloadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapsheets_tiles_downloaded_total",
		Help: "Total number of tiles fetched from tile servers",
	})

	tileBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapsheets_tile_bytes_total",
		Help: "Total bytes of tile data fetched from tile servers",
	})

	tileCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapsheets_tile_cache_total",
		Help: "Tile cache lookups by outcome",
	}, []string{"outcome"}) // outcome=hit|miss

	tileFetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapsheets_tile_fetch_failures_total",
		Help: "Tile fetch failures by reason",
	}, []string{"reason"}) // reason=http|status|decode|timeout

	sheetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapsheets_sheets_total",
		Help: "Sheet download outcomes",
	}, []string{"outcome"}) // outcome=downloaded|failed|skipped

	sheetDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapsheets_sheet_duration_seconds",
		Help:    "Time spent downloading and merging a single sheet",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapsheets_queries_total",
		Help: "Sheet index queries by kind",
	}, []string{"kind"}) // kind=wfs_ids|polygon|point|line|string

	indexSheets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapsheets_index_sheets",
		Help: "Number of sheets in the loaded metadata index",
	})

	indexReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapsheets_index_reloads_total",
		Help: "Metadata index reloads by outcome",
	}, []string{"outcome"}) // outcome=success|failure
)

func IncTileDownloaded(bytes int) {
	tilesDownloadedTotal.Inc()
	tileBytesTotal.Add(float64(bytes))
}

func IncTileCache(outcome string) { tileCacheTotal.WithLabelValues(outcome).Inc() }

func IncTileFetchFailure(reason string) { tileFetchFailuresTotal.WithLabelValues(reason).Inc() }

func IncSheet(outcome string) { sheetsTotal.WithLabelValues(outcome).Inc() }

func ObserveSheetDuration(d time.Duration) { sheetDurationSeconds.Observe(d.Seconds()) }

func IncQuery(kind string) { queriesTotal.WithLabelValues(kind).Inc() }

func SetIndexSheets(n int) { indexSheets.Set(float64(n)) }

func IncIndexReload(outcome string) { indexReloadsTotal.WithLabelValues(outcome).Inc() }

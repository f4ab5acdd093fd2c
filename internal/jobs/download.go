// SPDX-License-Identifier: MIT

// Package jobs runs sheet download batches and tracks their lifecycle.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mapsheets/mapsheets/internal/fetch"
	"github.com/mapsheets/mapsheets/internal/log"
	"github.com/mapsheets/mapsheets/internal/merge"
	"github.com/mapsheets/mapsheets/internal/metrics"
	"github.com/mapsheets/mapsheets/internal/registry"
	"github.com/mapsheets/mapsheets/internal/sheets"
)

// Progress counts the outcome of individual sheets within a batch.
type Progress struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Options configures a single download batch.
type Options struct {
	// Zoom selects the tile zoom level for every sheet in the batch.
	Zoom int
	// OutDir is the directory sheet images are written to.
	OutDir string
	// MetadataFile is the metadata file name inside OutDir. Defaults to
	// "metadata.csv".
	MetadataFile string
	// Overwrite re-downloads sheets whose output file already exists.
	Overwrite bool
	// AllowMissing stitches sheets with blank cells where tiles failed
	// instead of failing the sheet.
	AllowMissing bool
}

// Runner downloads selections of sheets, stitches them and records them.
type Runner struct {
	dl  *fetch.Downloader
	reg *registry.Registry
}

// NewRunner builds a Runner. The registry may be nil, in which case
// records are only appended to the metadata file.
func NewRunner(dl *fetch.Downloader, reg *registry.Registry) *Runner {
	return &Runner{dl: dl, reg: reg}
}

// sheetName derives the output file base name for a sheet.
func sheetName(s *sheets.Sheet) string {
	if s.Name != "" {
		return "map_" + s.Name
	}
	return "map_wfs_" + strconv.Itoa(s.WFSID)
}

// Run downloads every sheet of the selection. One sheet failing is logged
// and counted but does not abort the remaining sheets; only context
// cancellation stops the batch early. onProgress, when non-nil, is called
// after every sheet.
func (r *Runner) Run(ctx context.Context, selection []*sheets.Sheet, opts Options, onProgress func(Progress)) (Progress, error) {
	logger := log.WithComponentFromContext(ctx, "jobs")

	metadataFile := opts.MetadataFile
	if metadataFile == "" {
		metadataFile = "metadata.csv"
	}
	merger := merge.New(opts.OutDir, merge.Options{AllowMissing: opts.AllowMissing})

	progress := Progress{Total: len(selection)}
	var recs []registry.Record

	report := func() {
		if onProgress != nil {
			onProgress(progress)
		}
	}

	for _, s := range selection {
		if err := ctx.Err(); err != nil {
			return progress, err
		}

		name := sheetName(s)
		if !opts.Overwrite && merger.Exists(name) {
			progress.Skipped++
			metrics.IncSheet("skipped")
			logger.Debug().Str("sheet", name).Msg("sheet already present, skipping")
			report()
			continue
		}

		rec, err := r.downloadSheet(ctx, s, name, merger, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return progress, err
			}
			progress.Failed++
			metrics.IncSheet("failed")
			logger.Error().Err(err).
				Str("event", "sheet.failed").
				Str("sheet", name).
				Msg("sheet download failed")
			report()
			continue
		}

		progress.Done++
		metrics.IncSheet("downloaded")
		recs = append(recs, rec)
		logger.Info().
			Str("event", "sheet.downloaded").
			Str("sheet", name).
			Int("tiles", rec.Box.Count()).
			Msg("sheet downloaded")
		report()
	}

	if len(recs) > 0 {
		if err := registry.AppendTSV(filepath.Join(opts.OutDir, metadataFile), recs); err != nil {
			return progress, fmt.Errorf("append metadata: %w", err)
		}
	}
	return progress, nil
}

func (r *Runner) downloadSheet(ctx context.Context, s *sheets.Sheet, name string, merger *merge.Merger, opts Options) (registry.Record, error) {
	start := time.Now()

	box, err := s.TileBox(opts.Zoom)
	if err != nil {
		return registry.Record{}, fmt.Errorf("tile box: %w", err)
	}

	result, err := r.dl.FetchBox(ctx, box, !opts.AllowMissing)
	if err != nil {
		return registry.Record{}, err
	}

	if _, err := merger.Merge(box, result.Tiles, name); err != nil {
		return registry.Record{}, err
	}

	// Record the bounds of the tiles actually downloaded, not the sheet
	// outline; the tile box snaps outward to tile boundaries.
	minLon, minLat, maxLon, maxLat := box.Bounds()
	rec := registry.Record{
		Name:          name,
		URL:           s.ImageURL,
		MinLon:        minLon,
		MinLat:        minLat,
		MaxLon:        maxLon,
		MaxLat:        maxLat,
		PublishedDate: s.PublishedDate,
		Box:           box,
		DownloadedAt:  time.Now().UTC(),
	}
	if r.reg != nil {
		if err := r.reg.Upsert(ctx, rec); err != nil {
			return registry.Record{}, fmt.Errorf("record sheet: %w", err)
		}
	}

	metrics.ObserveSheetDuration(time.Since(start))
	return rec, nil
}

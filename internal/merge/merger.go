// SPDX-License-Identifier: MIT

// Package merge stitches downloaded tiles into whole map sheet images.
package merge

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	_ "image/gif"  // tile servers occasionally serve gif
	_ "image/jpeg" // or jpeg tiles

	"github.com/google/renameio/v2"
	xdraw "golang.org/x/image/draw"

	"github.com/mapsheets/mapsheets/internal/log"
	"github.com/mapsheets/mapsheets/internal/tiles"
)

// Options configures a Merger.
type Options struct {
	// AllowMissing fills absent tiles with blank cells instead of failing
	// the sheet.
	AllowMissing bool
}

// Merger assembles tile boxes into PNG sheets under an output directory.
type Merger struct {
	outDir       string
	allowMissing bool
}

// New returns a Merger writing into outDir.
func New(outDir string, opts Options) *Merger {
	return &Merger{outDir: outDir, allowMissing: opts.AllowMissing}
}

// OutputPath returns the path a sheet with the given name is written to.
func (m *Merger) OutputPath(name string) string {
	return filepath.Join(m.outDir, name+".png")
}

// Exists reports whether the sheet output file is already present.
func (m *Merger) Exists(name string) bool {
	_, err := os.Stat(m.OutputPath(name))
	return err == nil
}

// Merge stitches the tiles of a box into a single PNG written atomically
// to OutputPath(name). Tile data is keyed by tile index; tiles whose pixel
// size differs from the first tile are scaled to fit their cell.
func (m *Merger) Merge(box tiles.Box, data map[tiles.Index][]byte, name string) (string, error) {
	logger := log.WithComponent("merge")

	tileW, tileH, err := m.tileSize(box, data)
	if err != nil {
		return "", err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, box.Width()*tileW, box.Height()*tileH))
	if m.allowMissing {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}

	missing := 0
	var mergeErr error
	box.Each(func(idx tiles.Index) bool {
		cell := image.Rect(
			(idx.X-box.Lower.X)*tileW,
			(idx.Y-box.Lower.Y)*tileH,
			(idx.X-box.Lower.X+1)*tileW,
			(idx.Y-box.Lower.Y+1)*tileH,
		)

		raw, ok := data[idx]
		if !ok {
			if !m.allowMissing {
				mergeErr = fmt.Errorf("tile %s missing", idx)
				return false
			}
			missing++
			return true
		}

		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			if !m.allowMissing {
				mergeErr = fmt.Errorf("decode tile %s: %w", idx, err)
				return false
			}
			missing++
			return true
		}

		b := img.Bounds()
		if b.Dx() == tileW && b.Dy() == tileH {
			draw.Draw(canvas, cell, img, b.Min, draw.Src)
		} else {
			xdraw.ApproxBiLinear.Scale(canvas, cell, img, b, xdraw.Src, nil)
		}
		return true
	})
	if mergeErr != nil {
		return "", mergeErr
	}

	if err := os.MkdirAll(m.outDir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	outPath := m.OutputPath(name)
	pending, err := renameio.NewPendingFile(outPath)
	if err != nil {
		return "", fmt.Errorf("create pending sheet file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending sheet file")
		}
	}()

	if err := png.Encode(pending, canvas); err != nil {
		return "", fmt.Errorf("encode sheet: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace sheet file: %w", err)
	}

	if missing > 0 {
		logger.Warn().
			Str("sheet", name).
			Int("missing_tiles", missing).
			Msg("sheet merged with blank cells")
	}
	return outPath, nil
}

// tileSize determines the cell size from the first available tile.
func (m *Merger) tileSize(box tiles.Box, data map[tiles.Index][]byte) (int, int, error) {
	var first []byte
	box.Each(func(idx tiles.Index) bool {
		if raw, ok := data[idx]; ok {
			first = raw
			return false
		}
		return true
	})
	if first == nil {
		return 0, 0, fmt.Errorf("no tiles to merge")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(first))
	if err != nil {
		return 0, 0, fmt.Errorf("decode first tile: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

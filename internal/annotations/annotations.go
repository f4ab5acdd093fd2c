// SPDX-License-Identifier: MIT

// Package annotations loads patch label annotations from delimited files
// and prepares them for model training.
package annotations

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/mapsheets/mapsheets/internal/log"
)

// BrokenPolicy decides what happens to annotation rows whose image path
// does not exist on disk.
type BrokenPolicy string

const (
	// BrokenError fails the load when any image path is missing.
	BrokenError BrokenPolicy = "error"
	// BrokenRemove drops rows with missing images and records them in a
	// broken-files list next to the annotations file.
	BrokenRemove BrokenPolicy = "remove"
	// BrokenIgnore keeps rows with missing images.
	BrokenIgnore BrokenPolicy = "ignore"
)

// IsValid reports whether the policy is one of the defined constants.
func (p BrokenPolicy) IsValid() bool {
	switch p {
	case BrokenError, BrokenRemove, BrokenIgnore:
		return true
	}
	return false
}

// brokenListName is written next to the annotations file when rows are
// removed under BrokenRemove.
const brokenListName = "broken_files.txt"

// Options configures annotation loading.
type Options struct {
	// Delimiter separates columns. Defaults to ','.
	Delimiter rune
	// IDCol names the unique patch id column. Defaults to "image_id".
	IDCol string
	// PathCol names the patch image path column. Defaults to "image_path".
	PathCol string
	// LabelCol names the label column. Defaults to "label".
	LabelCol string
	// ImagesDir, when set, rebases each image path's file name onto this
	// directory.
	ImagesDir string
	// Broken selects handling of rows whose image is missing. Defaults to
	// BrokenRemove.
	Broken BrokenPolicy
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.IDCol == "" {
		o.IDCol = "image_id"
	}
	if o.PathCol == "" {
		o.PathCol = "image_path"
	}
	if o.LabelCol == "" {
		o.LabelCol = "label"
	}
	if o.Broken == "" {
		o.Broken = BrokenRemove
	}
	return o
}

// Record is one annotated patch.
type Record struct {
	ID    string
	Path  string
	Label string
}

// Set holds loaded annotations. Labels are indexed in order of first
// appearance, so label ids are stable across reloads of the same file.
type Set struct {
	opts    Options
	records []Record
	seen    map[string]bool
	labels  []string
	index   map[string]int
}

// Load reads an annotations file. Additional files can be merged in with
// Append.
func Load(path string, opts Options) (*Set, error) {
	s := &Set{
		opts:  opts.withDefaults(),
		seen:  make(map[string]bool),
		index: make(map[string]int),
	}
	if err := s.Append(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Append merges another annotations file into the set. Rows whose id was
// already loaded are dropped, keeping the earlier annotation.
func (s *Set) Append(path string) error {
	logger := log.WithComponent("annotations")

	f, err := os.Open(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("open annotations: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	r := csv.NewReader(f)
	r.Comma = s.opts.Delimiter
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("read annotations %s: %w", path, err)
	}
	if len(rows) < 2 {
		return fmt.Errorf("annotations %s has no data rows", path)
	}

	idIdx, pathIdx, labelIdx, err := s.columns(rows[0])
	if err != nil {
		return fmt.Errorf("annotations %s: %w", path, err)
	}

	dupes := 0
	var broken []Record
	for _, row := range rows[1:] {
		rec := Record{
			ID:    strings.TrimSpace(row[idIdx]),
			Path:  strings.TrimSpace(row[pathIdx]),
			Label: strings.TrimSpace(row[labelIdx]),
		}
		if s.seen[rec.ID] {
			dupes++
			continue
		}
		if s.opts.ImagesDir != "" {
			rec.Path = filepath.Join(s.opts.ImagesDir, filepath.Base(rec.Path))
		}
		if s.opts.Broken != BrokenIgnore {
			if _, err := os.Stat(rec.Path); err != nil {
				broken = append(broken, rec)
				if s.opts.Broken == BrokenRemove {
					continue
				}
			}
		}
		s.add(rec)
	}

	if len(broken) > 0 {
		switch s.opts.Broken {
		case BrokenError:
			return fmt.Errorf("%d image paths in %s do not exist (first: %s)",
				len(broken), path, broken[0].Path)
		case BrokenRemove:
			listPath := filepath.Join(filepath.Dir(path), brokenListName)
			if err := writeBrokenList(listPath, broken); err != nil {
				return err
			}
			logger.Warn().
				Int("broken", len(broken)).
				Str("list", listPath).
				Msg("removed annotations with missing images")
		}
	}
	if dupes > 0 {
		logger.Debug().Int("duplicates", dupes).Str("file", path).Msg("dropped duplicate annotation ids")
	}
	if len(s.records) == 0 {
		return errors.New("no annotations left after filtering")
	}
	return nil
}

func (s *Set) columns(header []string) (idIdx, pathIdx, labelIdx int, err error) {
	find := func(name string) (int, error) {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i, nil
			}
		}
		return 0, fmt.Errorf("column %q not found in header %v", name, header)
	}
	if idIdx, err = find(s.opts.IDCol); err != nil {
		return
	}
	if pathIdx, err = find(s.opts.PathCol); err != nil {
		return
	}
	labelIdx, err = find(s.opts.LabelCol)
	return
}

func (s *Set) add(rec Record) {
	s.seen[rec.ID] = true
	if _, ok := s.index[rec.Label]; !ok {
		s.index[rec.Label] = len(s.labels)
		s.labels = append(s.labels, rec.Label)
	}
	s.records = append(s.records, rec)
}

func writeBrokenList(path string, broken []Record) error {
	var b strings.Builder
	for _, rec := range broken {
		b.WriteString(rec.Path)
		b.WriteByte('\n')
	}
	if err := renameio.WriteFile(path, []byte(b.String()), 0o640); err != nil {
		return fmt.Errorf("write broken-files list: %w", err)
	}
	return nil
}

// Len returns the number of annotation records.
func (s *Set) Len() int { return len(s.records) }

// Records returns the annotations in their current order.
func (s *Set) Records() []Record { return s.records }

// Labels returns the distinct labels in order of first appearance.
func (s *Set) Labels() []string { return s.labels }

// LabelIndex returns the numeric id of a label.
func (s *Set) LabelIndex(label string) (int, bool) {
	i, ok := s.index[label]
	return i, ok
}

// Counts returns the number of records per label.
func (s *Set) Counts() map[string]int {
	out := make(map[string]int, len(s.labels))
	for _, rec := range s.records {
		out[rec.Label]++
	}
	return out
}

// Shuffle randomizes record order deterministically for a given seed.
func (s *Set) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- reproducible shuffle, not security
	rng.Shuffle(len(s.records), func(i, j int) {
		s.records[i], s.records[j] = s.records[j], s.records[i]
	})
}

// WriteCSV writes records to path atomically using the options' delimiter
// and column names.
func WriteCSV(path string, recs []Record, opts Options) error {
	return writeCSVColumns(path, recs, nil, opts)
}

// writeCSVColumns writes records with an optional per-record weight column.
func writeCSVColumns(path string, recs []Record, weights []float64, opts Options) error {
	opts = opts.withDefaults()
	if weights != nil && len(weights) != len(recs) {
		return fmt.Errorf("got %d weights for %d records", len(weights), len(recs))
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending annotations file: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	w := csv.NewWriter(pending)
	w.Comma = opts.Delimiter

	header := []string{opts.IDCol, opts.PathCol, opts.LabelCol}
	if weights != nil {
		header = append(header, "weight")
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, rec := range recs {
		row := []string{rec.ID, rec.Path, rec.Label}
		if weights != nil {
			row = append(row, strconv.FormatFloat(weights[i], 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write annotations: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace annotations file: %w", err)
	}
	return nil
}

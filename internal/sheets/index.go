// SPDX-License-Identifier: MIT

package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"

	"github.com/mapsheets/mapsheets/internal/metrics"
)

// QueryMode selects the spatial predicate for polygon queries.
type QueryMode string

const (
	// ModeWithin matches sheets lying completely inside the query polygon.
	ModeWithin QueryMode = "within"
	// ModeIntersects matches sheets overlapping the query polygon.
	ModeIntersects QueryMode = "intersects"
)

// IsValid reports whether the mode is one of the defined constants.
func (m QueryMode) IsValid() bool {
	switch m {
	case ModeWithin, ModeIntersects:
		return true
	}
	return false
}

var (
	// ErrNoMatch is returned when a query selects no sheets.
	ErrNoMatch = errors.New("no map sheets matched the query")
	// ErrOutOfBounds is returned when a query shape lies entirely outside
	// the metadata index.
	ErrOutOfBounds = errors.New("query shape is out of metadata bounds")
)

// Index is an immutable collection of map sheets. Reloads swap the whole
// index; see Holder.
type Index struct {
	sheets []*Sheet
	bounds geometry.Rect
}

type collectionDoc struct {
	Features []json.RawMessage `json:"features"`
}

// Load reads and parses a GeoJSON metadata file.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return Parse(data)
}

// Parse builds an index from GeoJSON FeatureCollection bytes.
func Parse(data []byte) (*Index, error) {
	var doc collectionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(doc.Features) == 0 {
		return nil, fmt.Errorf("metadata has no features")
	}

	ix := &Index{sheets: make([]*Sheet, 0, len(doc.Features))}
	for i, raw := range doc.Features {
		s, err := parseSheet(raw)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		r := s.Geometry.Rect()
		if len(ix.sheets) == 0 {
			ix.bounds = r
		} else {
			ix.bounds = unionRect(ix.bounds, r)
		}
		ix.sheets = append(ix.sheets, s)
	}
	metrics.SetIndexSheets(len(ix.sheets))
	return ix, nil
}

func unionRect(a, b geometry.Rect) geometry.Rect {
	if b.Min.X < a.Min.X {
		a.Min.X = b.Min.X
	}
	if b.Min.Y < a.Min.Y {
		a.Min.Y = b.Min.Y
	}
	if b.Max.X > a.Max.X {
		a.Max.X = b.Max.X
	}
	if b.Max.Y > a.Max.Y {
		a.Max.Y = b.Max.Y
	}
	return a
}

// Len returns the number of sheets in the index.
func (ix *Index) Len() int { return len(ix.sheets) }

// Sheets returns all sheets in metadata order.
func (ix *Index) Sheets() []*Sheet { return ix.sheets }

// Bounds returns the merged bounds of all sheet outlines as
// (minLon, minLat, maxLon, maxLat).
func (ix *Index) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	return ix.bounds.Min.X, ix.bounds.Min.Y, ix.bounds.Max.X, ix.bounds.Max.Y
}

// intersectsAny reports whether the query shape touches any sheet outline.
func (ix *Index) intersectsAny(obj geojson.Object) bool {
	for _, s := range ix.sheets {
		if s.Geometry.Intersects(obj) {
			return true
		}
	}
	return false
}

// ByWFSIDs returns the sheets whose WFS id number is in ids.
func (ix *Index) ByWFSIDs(ids ...int) ([]*Sheet, error) {
	metrics.IncQuery("wfs_ids")
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*Sheet
	for _, s := range ix.sheets {
		if s.WFSID >= 0 && want[s.WFSID] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("wfs ids %v: %w", ids, ErrNoMatch)
	}
	return out, nil
}

// ByPolygon returns the sheets within or intersecting the query polygon,
// depending on mode.
func (ix *Index) ByPolygon(poly *geojson.Polygon, mode QueryMode) ([]*Sheet, error) {
	metrics.IncQuery("polygon")
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid query mode %q (use %q or %q)", mode, ModeWithin, ModeIntersects)
	}
	if !ix.intersectsAny(poly) {
		return nil, ErrOutOfBounds
	}
	var out []*Sheet
	for _, s := range ix.sheets {
		switch mode {
		case ModeWithin:
			if s.Geometry.Within(poly) {
				out = append(out, s)
			}
		case ModeIntersects:
			if s.Geometry.Intersects(poly) {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoMatch
	}
	return out, nil
}

// ByPoint returns the sheets containing the point (x=lon, y=lat).
func (ix *Index) ByPoint(x, y float64) ([]*Sheet, error) {
	metrics.IncQuery("point")
	pt := geojson.NewPoint(geometry.Point{X: x, Y: y})
	if !ix.intersectsAny(pt) {
		return nil, ErrOutOfBounds
	}
	var out []*Sheet
	for _, s := range ix.sheets {
		if s.Geometry.Contains(pt) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoMatch
	}
	return out, nil
}

// ByLine returns the sheets intersecting the query line.
func (ix *Index) ByLine(line *geojson.LineString) ([]*Sheet, error) {
	metrics.IncQuery("line")
	if !ix.intersectsAny(line) {
		return nil, ErrOutOfBounds
	}
	var out []*Sheet
	for _, s := range ix.sheets {
		if s.Geometry.Intersects(line) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoMatch
	}
	return out, nil
}

// ByString returns the sheets whose feature-document field at keys
// matches the case-insensitive regular expression pattern. The key path
// is rooted at the feature itself, e.g. ["properties", "WFS_TITLE"] or
// ["id"]. An empty key path searches the whole feature document.
func (ix *Index) ByString(pattern string, keys []string) ([]*Sheet, error) {
	metrics.IncQuery("string")
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	var out []*Sheet
	for _, s := range ix.sheets {
		field, ok := s.property(keys)
		if !ok {
			continue
		}
		if re.MatchString(fmt.Sprint(field)) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoMatch
	}
	return out, nil
}

// Merge appends b to a, dropping sheets already selected. Used to build up
// selections across several queries.
func Merge(a, b []*Sheet) []*Sheet {
	seen := make(map[*Sheet]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	out := a
	for _, s := range b {
		if !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}

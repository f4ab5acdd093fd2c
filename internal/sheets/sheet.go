// SPDX-License-Identifier: MIT

// Package sheets loads a GeoJSON map-sheet index and answers spatial and
// textual queries against it.
package sheets

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/geojson"

	"github.com/mapsheets/mapsheets/internal/log"
	"github.com/mapsheets/mapsheets/internal/tiles"
)

// Sheet is a single map sheet from the metadata index.
type Sheet struct {
	// Name is the sheet image name (properties.IMAGE).
	Name string
	// ImageURL is the source archive URL (properties.IMAGEURL).
	ImageURL string
	// WFSID is the numeric suffix of the feature id ("layer.101" -> 101).
	// -1 when the id could not be parsed.
	WFSID int
	// PublishedDate is the year parsed from properties.WFS_TITLE, 0 when
	// absent.
	PublishedDate int

	// Geometry is the sheet outline. Multi-geometries are reduced to their
	// first polygon.
	Geometry geojson.Object

	// Properties carries the raw feature properties for string queries.
	Properties map[string]any

	raw string         // full feature document, searched when no key path is given
	doc map[string]any // parsed feature document, walked by key-path queries
}

// publishedDateRe extracts the trailing year from WFS titles such as
// "OS One Inch, Published 1902".
var publishedDateRe = regexp.MustCompile(`(?i)Published.*\D(\d+)`)

type featureDoc struct {
	ID         json.RawMessage `json:"id"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

func parseSheet(raw json.RawMessage) (*Sheet, error) {
	logger := log.WithComponent("sheets")

	var doc featureDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode feature: %w", err)
	}
	if len(doc.Geometry) == 0 {
		return nil, fmt.Errorf("feature has no geometry")
	}

	geom, err := geojson.Parse(string(doc.Geometry), nil)
	if err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}

	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, fmt.Errorf("decode feature: %w", err)
	}

	s := &Sheet{
		Properties: doc.Properties,
		raw:        string(raw),
		doc:        full,
		WFSID:      -1,
	}
	s.Name, _ = doc.Properties["IMAGE"].(string)
	s.ImageURL, _ = doc.Properties["IMAGEURL"].(string)

	s.Geometry = firstPolygon(geom)
	if s.Geometry != geom {
		logger.Warn().Str("sheet", s.Name).Msg("multiple geometries found, using first instance")
	}

	if id := parseFeatureID(doc.ID); id >= 0 {
		s.WFSID = id
	} else {
		logger.Warn().Str("sheet", s.Name).Msg("feature id has no numeric suffix")
	}

	if title, ok := doc.Properties["WFS_TITLE"].(string); ok {
		matches := publishedDateRe.FindAllStringSubmatch(title, -1)
		switch {
		case len(matches) == 0:
			logger.Warn().Str("sheet", s.Name).Msg("no published date detected")
		default:
			if len(matches) > 1 {
				logger.Warn().Str("sheet", s.Name).Msg("multiple published dates detected, using first date")
			}
			if year, err := strconv.Atoi(matches[0][1]); err == nil {
				s.PublishedDate = year
			}
		}
	} else {
		logger.Warn().Str("sheet", s.Name).Msg("no WFS title in properties")
	}

	return s, nil
}

// firstPolygon unwraps multi-geometries to their first member. Plain
// polygons pass through unchanged.
func firstPolygon(obj geojson.Object) geojson.Object {
	switch obj.(type) {
	case *geojson.MultiPolygon, *geojson.GeometryCollection:
		var first geojson.Object
		obj.ForEach(func(child geojson.Object) bool {
			first = child
			return false
		})
		if first != nil {
			return first
		}
	}
	return obj
}

// parseFeatureID extracts the numeric suffix of a WFS feature id. Returns
// -1 when no suffix can be parsed.
func parseFeatureID(raw json.RawMessage) int {
	if len(raw) == 0 {
		return -1
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		// Some servers emit numeric ids directly.
		var n int
		if err := json.Unmarshal(raw, &n); err == nil && n >= 0 {
			return n
		}
		return -1
	}
	parts := strings.Split(str, ".")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// TileBox returns the box of tiles covering the sheet at the given zoom.
func (s *Sheet) TileBox(zoom int) (tiles.Box, error) {
	r := s.Geometry.Rect()
	return tiles.BoxFromBounds(r.Min.Y, r.Min.X, r.Max.Y, r.Max.X, zoom)
}

// Bounds returns the sheet outline bounds as (minLon, minLat, maxLon, maxLat).
func (s *Sheet) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	r := s.Geometry.Rect()
	return r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
}

// property walks a key path into the feature document, rooted at the
// feature itself so paths like ["properties", "WFS_TITLE"] or ["id"]
// resolve. An empty path returns the whole feature document.
func (s *Sheet) property(keys []string) (any, bool) {
	if len(keys) == 0 {
		return s.raw, true
	}
	var cur any = s.doc
	for _, key := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

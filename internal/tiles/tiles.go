// SPDX-License-Identifier: MIT

// Package tiles implements slippy-map tile arithmetic for the Web Mercator
// projection, following the OpenStreetMap tile naming convention.
package tiles

import (
	"fmt"
	"math"
)

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Index addresses a single tile at zoom level Z.
type Index struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// MaxZoom is the highest zoom level accepted by IndexAt. Tile servers used
// for historical map series rarely publish beyond 19.
const MaxZoom = 22

// IndexAt returns the tile index containing the coordinate at the given zoom.
func IndexAt(c Coordinate, zoom int) (Index, error) {
	if zoom < 0 || zoom > MaxZoom {
		return Index{}, fmt.Errorf("zoom level %d out of range [0,%d]", zoom, MaxZoom)
	}
	n := float64(int(1) << zoom)
	x := int((c.Lon + 180) / 360 * n)
	latRad := c.Lat * math.Pi / 180
	y := int((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n)

	// Longitude wraps; latitude is clamped to the Mercator range.
	max := (1 << zoom) - 1
	x = ((x % (max + 1)) + max + 1) % (max + 1)
	if y < 0 {
		y = 0
	} else if y > max {
		y = max
	}
	return Index{X: x, Y: y, Z: zoom}, nil
}

// Origin returns the coordinate of the tile's upper-left corner.
func (i Index) Origin() Coordinate {
	n := float64(int(1) << i.Z)
	lon := float64(i.X)/n*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(i.Y)/n)))
	lat := latRad * 180 / math.Pi
	return Coordinate{Lat: lat, Lon: lon}
}

func (i Index) String() string {
	return fmt.Sprintf("%d/%d/%d", i.Z, i.X, i.Y)
}

// Box is an inclusive rectangular range of tiles at a single zoom level.
// Lower holds the minimum X and Y, Upper the maximum.
type Box struct {
	Lower Index `json:"lower"`
	Upper Index `json:"upper"`
}

// NewBox builds a Box from two arbitrary corner indices.
func NewBox(a, b Index) (Box, error) {
	if a.Z != b.Z {
		return Box{}, fmt.Errorf("mismatched zoom levels %d and %d", a.Z, b.Z)
	}
	lower := Index{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: a.Z}
	upper := Index{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: a.Z}
	return Box{Lower: lower, Upper: upper}, nil
}

// BoxFromBounds returns the box of tiles covering a lat/lon rectangle.
func BoxFromBounds(minLat, minLon, maxLat, maxLon float64, zoom int) (Box, error) {
	a, err := IndexAt(Coordinate{Lat: minLat, Lon: maxLon}, zoom)
	if err != nil {
		return Box{}, err
	}
	b, err := IndexAt(Coordinate{Lat: maxLat, Lon: minLon}, zoom)
	if err != nil {
		return Box{}, err
	}
	return NewBox(a, b)
}

// Zoom returns the box's zoom level.
func (b Box) Zoom() int { return b.Lower.Z }

// Width returns the number of tile columns.
func (b Box) Width() int { return b.Upper.X - b.Lower.X + 1 }

// Height returns the number of tile rows.
func (b Box) Height() int { return b.Upper.Y - b.Lower.Y + 1 }

// Count returns the total number of tiles in the box.
func (b Box) Count() int { return b.Width() * b.Height() }

// Each calls fn for every tile index in the box in row-major order.
// Iteration stops early if fn returns false.
func (b Box) Each(fn func(Index) bool) {
	for y := b.Lower.Y; y <= b.Upper.Y; y++ {
		for x := b.Lower.X; x <= b.Upper.X; x++ {
			if !fn(Index{X: x, Y: y, Z: b.Lower.Z}) {
				return
			}
		}
	}
}

// Bounds returns the geographic rectangle spanned by the corner tile
// origins as (minLon, minLat, maxLon, maxLat). This mirrors the bounds
// recorded alongside downloaded sheets.
func (b Box) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	lo := b.Lower.Origin()
	hi := b.Upper.Origin()
	minLon = math.Min(lo.Lon, hi.Lon)
	maxLon = math.Max(lo.Lon, hi.Lon)
	minLat = math.Min(lo.Lat, hi.Lat)
	maxLat = math.Max(lo.Lat, hi.Lat)
	return minLon, minLat, maxLon, maxLat
}

func (b Box) String() string {
	return fmt.Sprintf("z%d [%d..%d]x[%d..%d]", b.Lower.Z, b.Lower.X, b.Upper.X, b.Lower.Y, b.Upper.Y)
}

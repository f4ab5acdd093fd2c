// SPDX-License-Identifier: MIT

package sheets

import (
	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"
)

// PolygonFromBounds builds a rectangular query polygon from latitudes and
// longitudes.
func PolygonFromBounds(minLat, minLon, maxLat, maxLon float64) *geojson.Polygon {
	exterior := []geometry.Point{
		{X: minLon, Y: minLat},
		{X: maxLon, Y: minLat},
		{X: maxLon, Y: maxLat},
		{X: minLon, Y: maxLat},
		{X: minLon, Y: minLat},
	}
	return geojson.NewPolygon(geometry.NewPoly(exterior, nil, nil))
}

// LineBetween builds a query line between two (lat, lon) points.
func LineBetween(lat1, lon1, lat2, lon2 float64) *geojson.LineString {
	pts := []geometry.Point{
		{X: lon1, Y: lat1},
		{X: lon2, Y: lat2},
	}
	return geojson.NewLineString(geometry.NewLine(pts, nil))
}

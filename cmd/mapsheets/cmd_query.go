// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mapsheets/mapsheets/internal/sheets"
)

// queryFlags are shared between the query and download commands. Several
// criteria may be combined; the selections are merged without duplicates.
type queryFlags struct {
	metadata string
	wfsIDs   []int
	bounds   []float64 // minLat minLon maxLat maxLon
	mode     string
	point    []float64 // lat lon
	line     []float64 // lat1 lon1 lat2 lon2
	pattern  string
	keys     []string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&q.metadata, "metadata", "m", "metadata.json", "GeoJSON sheet index file")
	cmd.Flags().IntSliceVar(&q.wfsIDs, "wfs-ids", nil, "select sheets by WFS id")
	cmd.Flags().Float64SliceVar(&q.bounds, "bounds", nil, "select by rectangle: minLat,minLon,maxLat,maxLon")
	cmd.Flags().StringVar(&q.mode, "mode", string(sheets.ModeWithin), "polygon query mode (within|intersects)")
	cmd.Flags().Float64SliceVar(&q.point, "point", nil, "select sheets containing a point: lat,lon")
	cmd.Flags().Float64SliceVar(&q.line, "line", nil, "select sheets crossed by a line: lat1,lon1,lat2,lon2")
	cmd.Flags().StringVar(&q.pattern, "pattern", "", "select by regexp match on metadata text")
	cmd.Flags().StringSliceVar(&q.keys, "keys", nil, "feature key path for --pattern, e.g. properties,WFS_TITLE (default: whole document)")
}

// selection runs every provided criterion against the index and merges the
// results. With no criteria every sheet is selected.
func (q *queryFlags) selection(ix *sheets.Index) ([]*sheets.Sheet, error) {
	var out []*sheets.Sheet
	filtered := false

	if len(q.wfsIDs) > 0 {
		filtered = true
		sel, err := ix.ByWFSIDs(q.wfsIDs...)
		if err != nil {
			return nil, err
		}
		out = sheets.Merge(out, sel)
	}
	if len(q.bounds) > 0 {
		if len(q.bounds) != 4 {
			return nil, fmt.Errorf("--bounds needs minLat,minLon,maxLat,maxLon")
		}
		filtered = true
		poly := sheets.PolygonFromBounds(q.bounds[0], q.bounds[1], q.bounds[2], q.bounds[3])
		sel, err := ix.ByPolygon(poly, sheets.QueryMode(q.mode))
		if err != nil {
			return nil, err
		}
		out = sheets.Merge(out, sel)
	}
	if len(q.point) > 0 {
		if len(q.point) != 2 {
			return nil, fmt.Errorf("--point needs lat,lon")
		}
		filtered = true
		sel, err := ix.ByPoint(q.point[1], q.point[0])
		if err != nil {
			return nil, err
		}
		out = sheets.Merge(out, sel)
	}
	if len(q.line) > 0 {
		if len(q.line) != 4 {
			return nil, fmt.Errorf("--line needs lat1,lon1,lat2,lon2")
		}
		filtered = true
		line := sheets.LineBetween(q.line[0], q.line[1], q.line[2], q.line[3])
		sel, err := ix.ByLine(line)
		if err != nil {
			return nil, err
		}
		out = sheets.Merge(out, sel)
	}
	if q.pattern != "" {
		filtered = true
		sel, err := ix.ByString(q.pattern, q.keys)
		if err != nil {
			return nil, err
		}
		out = sheets.Merge(out, sel)
	}

	if !filtered {
		return ix.Sheets(), nil
	}
	return out, nil
}

func newQueryCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List the sheets a query selects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := sheets.Load(q.metadata)
			if err != nil {
				return err
			}
			sel, err := q.selection(ix)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, s := range sel {
				minLon, minLat, maxLon, maxLat := s.Bounds()
				fmt.Fprintf(w, "%s\twfs=%d\tpublished=%d\tbounds=(%g, %g, %g, %g)\n",
					s.Name, s.WFSID, s.PublishedDate, minLon, minLat, maxLon, maxLat)
			}
			fmt.Fprintf(w, "%d sheet(s)\n", len(sel))
			return nil
		},
	}
	q.register(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(newQueryCmd())
}

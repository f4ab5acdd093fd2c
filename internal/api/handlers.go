// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mapsheets/mapsheets/internal/jobs"
	"github.com/mapsheets/mapsheets/internal/sheets"
)

// sheetSummary is the wire representation of a sheet.
type sheetSummary struct {
	Name          string     `json:"name"`
	ImageURL      string     `json:"image_url,omitempty"`
	WFSID         int        `json:"wfs_id"`
	PublishedDate int        `json:"published_date,omitempty"`
	Bounds        [4]float64 `json:"bounds"` // min_lon, min_lat, max_lon, max_lat
}

func summarize(sel []*sheets.Sheet) []sheetSummary {
	out := make([]sheetSummary, len(sel))
	for i, s := range sel {
		minLon, minLat, maxLon, maxLat := s.Bounds()
		out[i] = sheetSummary{
			Name:          s.Name,
			ImageURL:      s.ImageURL,
			WFSID:         s.WFSID,
			PublishedDate: s.PublishedDate,
			Bounds:        [4]float64{minLon, minLat, maxLon, maxLat},
		}
	}
	return out
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type boundsRequest struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// queryRequest selects sheets from the index. Kind picks the query;
// the matching field must be set.
type queryRequest struct {
	Kind    string         `json:"kind"`
	Mode    string         `json:"mode,omitempty"`
	WFSIDs  []int          `json:"wfs_ids,omitempty"`
	Bounds  *boundsRequest `json:"bounds,omitempty"`
	Point   *latLon        `json:"point,omitempty"`
	Line    []latLon       `json:"line,omitempty"`
	Pattern string         `json:"pattern,omitempty"`
	Keys    []string       `json:"keys,omitempty"`
}

// run executes the query against the index.
func (q queryRequest) run(ix *sheets.Index) ([]*sheets.Sheet, error) {
	switch q.Kind {
	case "wfs_ids":
		if len(q.WFSIDs) == 0 {
			return nil, errors.New("wfs_ids query needs at least one id")
		}
		return ix.ByWFSIDs(q.WFSIDs...)
	case "polygon":
		if q.Bounds == nil {
			return nil, errors.New("polygon query needs bounds")
		}
		mode := sheets.QueryMode(q.Mode)
		if q.Mode == "" {
			mode = sheets.ModeWithin
		}
		poly := sheets.PolygonFromBounds(q.Bounds.MinLat, q.Bounds.MinLon, q.Bounds.MaxLat, q.Bounds.MaxLon)
		return ix.ByPolygon(poly, mode)
	case "point":
		if q.Point == nil {
			return nil, errors.New("point query needs a point")
		}
		return ix.ByPoint(q.Point.Lon, q.Point.Lat)
	case "line":
		if len(q.Line) != 2 {
			return nil, errors.New("line query needs exactly two points")
		}
		line := sheets.LineBetween(q.Line[0].Lat, q.Line[0].Lon, q.Line[1].Lat, q.Line[1].Lon)
		return ix.ByLine(line)
	case "string":
		if q.Pattern == "" {
			return nil, errors.New("string query needs a pattern")
		}
		return ix.ByString(q.Pattern, q.Keys)
	default:
		return nil, fmt.Errorf("unknown query kind %q", q.Kind)
	}
}

func (s *Server) handleListSheets(w http.ResponseWriter, _ *http.Request) {
	ix := s.holder.Current()
	minLon, minLat, maxLon, maxLat := ix.Bounds()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  ix.Len(),
		"bounds": [4]float64{minLon, minLat, maxLon, maxLat},
		"sheets": summarize(ix.Sheets()),
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q queryRequest
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, fmt.Errorf("decode query: %w", err))
		return
	}

	sel, err := q.run(s.holder.Current())
	if err != nil {
		if errors.Is(err, sheets.ErrNoMatch) {
			writeNotFound(w, err.Error())
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(sel),
		"sheets": summarize(sel),
	})
}

// downloadRequest starts a batch download of the sheets a query selects.
type downloadRequest struct {
	queryRequest
	Zoom         int  `json:"zoom,omitempty"`
	Overwrite    bool `json:"overwrite,omitempty"`
	AllowMissing bool `json:"allow_missing,omitempty"`
}

func (s *Server) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode download request: %w", err))
		return
	}

	sel, err := req.run(s.holder.Current())
	if err != nil {
		if errors.Is(err, sheets.ErrNoMatch) {
			writeNotFound(w, err.Error())
			return
		}
		writeError(w, err)
		return
	}

	zoom := req.Zoom
	if zoom == 0 {
		zoom = s.cfg.Zoom
	}
	id := s.manager.Start(r.Context(), sel, jobs.Options{
		Zoom:         zoom,
		OutDir:       s.cfg.DataDir,
		Overwrite:    req.Overwrite,
		AllowMissing: req.AllowMissing,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     id,
		"sheets": len(sel),
	})
}

func (s *Server) handleListDownloads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.manager.List()})
}

func (s *Server) handleGetDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.manager.Cancel(id) {
		writeNotFound(w, "job not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": "cancelling",
	})
}

func (s *Server) handleListMaps(w http.ResponseWriter, r *http.Request) {
	recs, err := s.reg.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	type mapRecord struct {
		Name          string     `json:"name"`
		URL           string     `json:"url,omitempty"`
		Bounds        [4]float64 `json:"bounds"`
		PublishedDate int        `json:"published_date,omitempty"`
		Zoom          int        `json:"zoom"`
		Tiles         int        `json:"tiles"`
		DownloadedAt  string     `json:"downloaded_at"`
	}
	out := make([]mapRecord, len(recs))
	for i, rec := range recs {
		out[i] = mapRecord{
			Name:          rec.Name,
			URL:           rec.URL,
			Bounds:        [4]float64{rec.MinLon, rec.MinLat, rec.MaxLon, rec.MaxLat},
			PublishedDate: rec.PublishedDate,
			Zoom:          rec.Box.Zoom(),
			Tiles:         rec.Box.Count(),
			DownloadedAt:  rec.DownloadedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"maps": out})
}

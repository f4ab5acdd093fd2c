// SPDX-License-Identifier: MIT

// Package api exposes the map sheet index, download jobs and the sheet
// registry over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mapsheets/mapsheets/internal/config"
	"github.com/mapsheets/mapsheets/internal/jobs"
	"github.com/mapsheets/mapsheets/internal/registry"
	"github.com/mapsheets/mapsheets/internal/sheets"
)

// Server wires the HTTP handlers to the metadata index and job manager.
type Server struct {
	cfg       config.AppConfig
	holder    *sheets.Holder
	manager   *jobs.Manager
	reg       *registry.Registry
	startTime time.Time
}

// New builds a Server. The registry may be nil, disabling /api/maps.
func New(cfg config.AppConfig, holder *sheets.Holder, manager *jobs.Manager, reg *registry.Registry) *Server {
	return &Server{
		cfg:       cfg,
		holder:    holder,
		manager:   manager,
		reg:       reg,
		startTime: time.Now(),
	}
}

// Routes returns the router with the full middleware stack applied.
// Ordering: recoverer outermost, then request id for correlation, logging,
// and the rate limit.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(600, time.Minute))

		r.Get("/sheets", s.handleListSheets)
		r.Post("/query", s.handleQuery)

		r.Post("/downloads", s.handleStartDownload)
		r.Get("/downloads", s.handleListDownloads)
		r.Get("/downloads/{id}", s.handleGetDownload)
		r.Delete("/downloads/{id}", s.handleCancelDownload)

		if s.reg != nil {
			r.Get("/maps", s.handleListMaps)
		}
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	ix := s.holder.Current()
	if ix == nil || ix.Len() == 0 {
		writeServiceUnavailable(w, "metadata index not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"sheets": ix.Len(),
	})
}

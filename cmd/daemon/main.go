// SPDX-License-Identifier: MIT

// Command daemon serves the map sheet index and download jobs over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mapsheets/mapsheets/internal/api"
	"github.com/mapsheets/mapsheets/internal/config"
	"github.com/mapsheets/mapsheets/internal/fetch"
	"github.com/mapsheets/mapsheets/internal/jobs"
	mslog "github.com/mapsheets/mapsheets/internal/log"
	"github.com/mapsheets/mapsheets/internal/registry"
	"github.com/mapsheets/mapsheets/internal/sheets"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	mslog.Configure(mslog.Config{
		Level:   "info",
		Service: "mapsheets",
		Version: version,
	})
	logger := mslog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	mslog.Configure(mslog.Config{
		Level:   cfg.LogLevel,
		Service: "mapsheets",
		Version: version,
	})

	if *configPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", *configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	holder, err := sheets.NewHolder(cfg.MetadataPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "metadata.load_failed").
			Str("path", cfg.MetadataPath).
			Msg("failed to load metadata index")
	}

	cache, err := fetch.OpenCache(cfg.CacheDir, cfg.CacheTTL)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "cache.open_failed").
			Str("dir", cfg.CacheDir).
			Msg("failed to open tile cache")
	}
	defer func() {
		_ = cache.Close()
	}()

	dl, err := fetch.New(cfg.TileServers, fetch.Options{
		Timeout:       cfg.RequestTimeout,
		Retries:       cfg.Retries,
		RatePerSecond: cfg.RatePerSecond,
		Concurrency:   cfg.Concurrency,
		Cache:         cache,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "downloader.init_failed").
			Msg("failed to build tile downloader")
	}

	reg, err := registry.Open(filepath.Join(cfg.DataDir, "sheets.db"))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "registry.open_failed").
			Msg("failed to open sheet registry")
	}
	defer func() {
		_ = reg.Close()
	}()

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Listen).
		Int("sheets", holder.Current().Len()).
		Int("zoom", cfg.Zoom).
		Msg("starting mapsheets")

	srv := api.New(cfg, holder, jobs.NewManager(jobs.NewRunner(dl, reg)), reg)
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := holder.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("metadata watcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
	}
	logger.Info().Msg("server exiting")
}

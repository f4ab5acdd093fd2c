// SPDX-License-Identifier: MIT

// Package registry persists records of downloaded map sheets.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // cgo-free sqlite driver

	"github.com/mapsheets/mapsheets/internal/tiles"
)

// Record describes one downloaded sheet.
type Record struct {
	Name          string
	URL           string
	MinLon        float64
	MinLat        float64
	MaxLon        float64
	MaxLat        float64
	PublishedDate int
	Box           tiles.Box
	DownloadedAt  time.Time
}

// Registry is a sqlite-backed store of sheet records.
type Registry struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sheets (
	name          TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	min_lon       REAL NOT NULL,
	min_lat       REAL NOT NULL,
	max_lon       REAL NOT NULL,
	max_lat       REAL NOT NULL,
	published     INTEGER NOT NULL,
	zoom          INTEGER NOT NULL,
	min_x         INTEGER NOT NULL,
	min_y         INTEGER NOT NULL,
	max_x         INTEGER NOT NULL,
	max_y         INTEGER NOT NULL,
	downloaded_at TIMESTAMP NOT NULL
);`

// Open opens (or creates) the registry database at path, creating parent
// directories as needed.
func Open(path string) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create registry dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent jobs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close releases the database.
func (r *Registry) Close() error { return r.db.Close() }

// Upsert inserts or replaces the record for a sheet.
func (r *Registry) Upsert(ctx context.Context, rec Record) error {
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sheets (name, url, min_lon, min_lat, max_lon, max_lat,
			published, zoom, min_x, min_y, max_x, max_y, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			min_lon = excluded.min_lon, min_lat = excluded.min_lat,
			max_lon = excluded.max_lon, max_lat = excluded.max_lat,
			published = excluded.published, zoom = excluded.zoom,
			min_x = excluded.min_x, min_y = excluded.min_y,
			max_x = excluded.max_x, max_y = excluded.max_y,
			downloaded_at = excluded.downloaded_at`,
		rec.Name, rec.URL, rec.MinLon, rec.MinLat, rec.MaxLon, rec.MaxLat,
		rec.PublishedDate, rec.Box.Zoom(),
		rec.Box.Lower.X, rec.Box.Lower.Y, rec.Box.Upper.X, rec.Box.Upper.Y,
		rec.DownloadedAt)
	if err != nil {
		return fmt.Errorf("upsert sheet %q: %w", rec.Name, err)
	}
	return nil
}

// Get returns the record for a sheet name, if present.
func (r *Registry) Get(ctx context.Context, name string) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, url, min_lon, min_lat, max_lon, max_lat,
			published, zoom, min_x, min_y, max_x, max_y, downloaded_at
		FROM sheets WHERE name = ?`, name)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// List returns all records ordered by name.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, url, min_lon, min_lat, max_lon, max_lat,
			published, zoom, min_x, min_y, max_x, max_y, downloaded_at
		FROM sheets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var zoom, minX, minY, maxX, maxY int
	err := s.Scan(&rec.Name, &rec.URL, &rec.MinLon, &rec.MinLat, &rec.MaxLon, &rec.MaxLat,
		&rec.PublishedDate, &zoom, &minX, &minY, &maxX, &maxY, &rec.DownloadedAt)
	if err != nil {
		return Record{}, err
	}
	box, err := tiles.NewBox(
		tiles.Index{X: minX, Y: minY, Z: zoom},
		tiles.Index{X: maxX, Y: maxY, Z: zoom},
	)
	if err != nil {
		return Record{}, err
	}
	rec.Box = box
	return rec, nil
}

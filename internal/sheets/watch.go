// SPDX-License-Identifier: MIT

package sheets

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mapsheets/mapsheets/internal/log"
	"github.com/mapsheets/mapsheets/internal/metrics"
)

// Holder serves the current metadata index and swaps it atomically when the
// file changes on disk.
type Holder struct {
	path    string
	current atomic.Pointer[Index]
}

// NewHolder loads the metadata file and returns a holder serving it.
func NewHolder(path string) (*Holder, error) {
	ix, err := Load(path)
	if err != nil {
		return nil, err
	}
	h := &Holder{path: path}
	h.current.Store(ix)
	return h, nil
}

// Current returns the index snapshot to run queries against.
func (h *Holder) Current() *Index {
	return h.current.Load()
}

// Reload re-reads the metadata file and swaps the index on success. The
// previous index stays in place when the new file fails to parse.
func (h *Holder) Reload() error {
	ix, err := Load(h.path)
	if err != nil {
		metrics.IncIndexReload("failure")
		return err
	}
	h.current.Store(ix)
	metrics.IncIndexReload("success")
	return nil
}

// debounce coalesces editor write bursts into a single reload.
const debounce = 250 * time.Millisecond

// Watch reloads the index whenever the metadata file is rewritten. It
// blocks until ctx is cancelled.
func (h *Holder) Watch(ctx context.Context) error {
	logger := log.WithComponent("sheets")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	// Watch the parent directory: atomic replaces (rename-over) drop the
	// watch on the file itself.
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	target := filepath.Base(h.path)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timerC:
			timerC = nil
			if err := h.Reload(); err != nil {
				logger.Error().Err(err).Str("event", "metadata.reload_failed").Str("path", h.path).Msg("keeping previous index")
				continue
			}
			logger.Info().
				Str("event", "metadata.reloaded").
				Str("path", h.path).
				Int("sheets", h.Current().Len()).
				Msg("metadata index reloaded")
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}

// SPDX-License-Identifier: MIT

package fetch

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mapsheets/mapsheets/internal/metrics"
)

// Cache is a persistent badger-backed tile cache. Entries expire after the
// configured TTL so stale tiles are eventually refetched.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenCache opens (or creates) the tile cache at dir.
func OpenCache(dir string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached tile bytes, if present.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			metrics.IncTileCache("miss")
			return nil, false, nil
		}
		return nil, false, err
	}
	metrics.IncTileCache("hit")
	return out, true, nil
}

// Put stores tile bytes under key with the cache TTL.
func (c *Cache) Put(key string, val []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), val)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
}

package cache

import (
	"encoding/json"
	"io"
	"maps"
	"os"
	"sync"
	"time"

	"github.com/leafobd/obd-ble/pkg/protocol"
)

type ResultCache struct {
	Values    protocol.Values `json:"values"`
	UpdatedAt time.Time       `json:"updated_at"`
	lock      sync.Mutex
}

// New returns an empty ResultCache.
func New() *ResultCache {
	return &ResultCache{
		Values: make(protocol.Values),
	}
}

// Import a ResultCache using data in r.
// The data should previously have been generated using [ResultCache.Export].
func Import(r io.Reader) (*ResultCache, error) {
	var cache ResultCache
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&cache); err != nil {
		return nil, err
	}
	if cache.Values == nil {
		cache.Values = make(protocol.Values)
	}
	return &cache, nil
}

// ImportFromFile reads a ResultCache from disk.
func ImportFromFile(filename string) (*ResultCache, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized ResultCache to w.
func (c *ResultCache) Export(w io.Writer) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return json.NewEncoder(w).Encode(c)
}

// ExportToFile writes a ResultCache to disk.
func (c *ResultCache) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Export(file)
}

// Merge overwrites the cached value of every key in values. Keys absent from values keep their
// previous value.
func (c *ResultCache) Merge(values protocol.Values) {
	c.lock.Lock()
	defer c.lock.Unlock()

	maps.Copy(c.Values, values)
	c.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the cached values.
func (c *ResultCache) Snapshot() protocol.Values {
	c.lock.Lock()
	defer c.lock.Unlock()

	return maps.Clone(c.Values)
}

// Len returns the number of cached keys.
func (c *ResultCache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return len(c.Values)
}

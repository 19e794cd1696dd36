// Package cache keeps previously computed checksums keyed by file identity so
// unchanged files are not rehashed on every scan.
package cache

import (
	"sync"
	"time"

	"github.com/kennedydane/static-server/internal/checksum"
)

// Record holds the digests computed for one file, valid only while the live
// file's size and modification time still match.
type Record struct {
	Size    int64
	ModTime time.Time
	Digests checksum.Digests
}

// Cache is a concurrency-safe map of relative path → Record.
type Cache struct {
	mu      sync.RWMutex
	records map[string]Record
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{records: make(map[string]Record)}
}

// Lookup returns the record for path, and whether one exists.
func (c *Cache) Lookup(path string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[path]
	return rec, ok
}

// Valid returns the cached digests for path if the record matches the live
// size and mtime exactly. Any mismatch means the file must be rehashed.
func (c *Cache) Valid(path string, size int64, modTime time.Time) (checksum.Digests, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[path]
	if !ok || rec.Size != size || !rec.ModTime.Equal(modTime) {
		return nil, false
	}
	return rec.Digests, true
}

// Store overwrites the record for path.
func (c *Cache) Store(path string, size int64, modTime time.Time, digests checksum.Digests) {
	c.mu.Lock()
	c.records[path] = Record{Size: size, ModTime: modTime, Digests: digests}
	c.mu.Unlock()
}

// Evict removes the record for path. Safe to call for unknown paths.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.records, path)
	c.mu.Unlock()
}

// Sweep removes every record whose path is not in live, returning how many
// were evicted. Called after a build so deleted files do not accumulate.
func (c *Cache) Sweep(live map[string]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for path := range c.records {
		if _, ok := live[path]; !ok {
			delete(c.records, path)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

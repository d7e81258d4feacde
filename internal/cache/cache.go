// Package cache keeps recent parse results in memory, keyed by a hash of
// the file path, its content and the options it was parsed with.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dusk-indust/polyparse/internal/graph"
)

// DefaultSize is the number of results kept when no size is configured.
const DefaultSize = 512

// Stats counts cache activity since creation.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Len       int   `json:"len"`
}

// ResultCache is a fixed-size LRU of parse results. Cached results are
// shared between callers and must not be modified.
type ResultCache struct {
	lru       *lru.Cache[string, *graph.ParseResult]
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New returns a cache holding up to size results. size <= 0 means
// DefaultSize.
func New(size int) *ResultCache {
	if size <= 0 {
		size = DefaultSize
	}
	c := &ResultCache{}
	// NewWithEvict only fails for a non-positive size.
	c.lru, _ = lru.NewWithEvict[string, *graph.ParseResult](size, func(string, *graph.ParseResult) {
		c.evictions.Add(1)
	})
	return c
}

// Key derives the cache key of one parse. variant distinguishes parses of
// the same content with different options.
func Key(path string, content []byte, variant string) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(variant))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the result stored under key.
func (c *ResultCache) Get(key string) (*graph.ParseResult, bool) {
	r, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return r, ok
}

// Add stores r under key.
func (c *ResultCache) Add(key string, r *graph.ParseResult) {
	c.lru.Add(key, r)
}

// Purge empties the cache.
func (c *ResultCache) Purge() { c.lru.Purge() }

// Stats returns the activity counters.
func (c *ResultCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.lru.Len(),
	}
}

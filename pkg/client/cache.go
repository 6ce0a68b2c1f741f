package client

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
)

// ResultCache stores completed search results keyed by (query, mode). The
// cache is owned by the client instance; implementations decide eviction.
type ResultCache interface {
	Get(key string) (iam.SearchResults, bool)
	Set(key string, res iam.SearchResults)
	Clear()
}

// MapCache is the reference behavior: an unbounded in-memory map that lives
// for the session. It never evicts, so long sessions grow without bound;
// use NewTTLCache where that matters.
type MapCache struct {
	mu      sync.RWMutex
	entries map[string]iam.SearchResults
}

// NewMapCache returns an empty unbounded cache.
func NewMapCache() *MapCache {
	return &MapCache{entries: make(map[string]iam.SearchResults)}
}

func (c *MapCache) Get(key string) (iam.SearchResults, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[key]
	return res, ok
}

func (c *MapCache) Set(key string, res iam.SearchResults) {
	c.mu.Lock()
	c.entries[key] = res
	c.mu.Unlock()
}

func (c *MapCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]iam.SearchResults)
	c.mu.Unlock()
}

// TTLCache evicts entries after a fixed lifetime, backed by go-cache.
type TTLCache struct {
	inner *gocache.Cache
}

// NewTTLCache creates a result cache whose entries expire after ttl and are
// purged every purgeInterval.
func NewTTLCache(ttl, purgeInterval time.Duration) *TTLCache {
	return &TTLCache{inner: gocache.New(ttl, purgeInterval)}
}

func (c *TTLCache) Get(key string) (iam.SearchResults, bool) {
	if x, found := c.inner.Get(key); found {
		return x.(iam.SearchResults), true
	}
	return iam.SearchResults{}, false
}

func (c *TTLCache) Set(key string, res iam.SearchResults) {
	c.inner.Set(key, res, gocache.DefaultExpiration)
}

func (c *TTLCache) Clear() {
	c.inner.Flush()
}

package status

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// cached is one built view.
type cached struct {
	value any
	built time.Time
}

// viewCache keeps built views for a TTL. Concurrent misses on one key share
// a single build.
type viewCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cached
	sf      singleflight.Group
}

func newViewCache(ttl time.Duration) *viewCache {
	return &viewCache{ttl: ttl, now: time.Now, entries: make(map[string]cached)}
}

func (c *viewCache) fresh(key string) (any, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.built) > c.ttl {
		return nil, false
	}
	return e.value, true
}

// getOrBuild returns the cached view for key or builds it. Build errors are
// not cached.
func (c *viewCache) getOrBuild(key string, build func() (any, error)) (any, error) {
	if v, ok := c.fresh(key); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := c.fresh(key); ok {
			return v, nil
		}
		v, err := build()
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.mu.Lock()
			c.entries[key] = cached{value: v, built: c.now()}
			c.mu.Unlock()
		}
		return v, nil
	})
	return v, err
}

func (c *viewCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cached)
	c.mu.Unlock()
}

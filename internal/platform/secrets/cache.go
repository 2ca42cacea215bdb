package secrets

import (
	"sync"
	"time"
)

// ttlCache holds resolved values until they expire.
type ttlCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

func newTTLCache(ttl time.Duration, clock func() time.Time) *ttlCache {
	return &ttlCache{ttl: ttl, clock: clock, entries: make(map[string]cachedSecret)}
}

func (c *ttlCache) get(key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.clock().Before(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (c *ttlCache) put(key, value string) {
	c.mu.Lock()
	c.entries[key] = cachedSecret{value: value, expiresAt: c.clock().Add(c.ttl)}
	c.mu.Unlock()
}

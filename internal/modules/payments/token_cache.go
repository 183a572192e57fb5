package payments

import (
	"sync"
	"time"
)

// InvalidateAll is the key that drops every cached token.
const InvalidateAll = "*"

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// TokenCache holds sub-account API tokens for a fixed TTL. It is safe for
// concurrent use.
type TokenCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cachedToken
}

func NewTokenCache(ttl time.Duration, now func() time.Time) *TokenCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &TokenCache{ttl: ttl, now: now, entries: map[string]cachedToken{}}
}

func (c *TokenCache) Get(key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (c *TokenCache) Set(key, token string) {
	c.mu.Lock()
	c.entries[key] = cachedToken{value: token, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops key, or everything when key is InvalidateAll. It returns
// the number of entries removed.
func (c *TokenCache) Invalidate(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == InvalidateAll {
		n := len(c.entries)
		c.entries = map[string]cachedToken{}
		return n
	}
	if _, ok := c.entries[key]; !ok {
		return 0
	}
	delete(c.entries, key)
	return 1
}

func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry is one cached completion.
type cacheEntry struct {
	expiry time.Time
	reply  string
}

// completionCache remembers replies by prompt digest so re-parsing the same message
// does not pay for a second request.
type completionCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
	once    sync.Once
}

// newCompletionCache creates a new cache with the specified TTL.
func newCompletionCache(ttl time.Duration) *completionCache {
	if ttl == 0 {
		ttl = time.Hour
	}

	cache := &completionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go cache.cleanup()
	return cache
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// get returns a reply if present and not expired.
func (c *completionCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiry) {
		return "", false
	}
	return entry.reply, true
}

func (c *completionCache) set(key, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{reply: reply, expiry: time.Now().Add(c.ttl)}
}

// cleanup periodically removes expired entries.
func (c *completionCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *completionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// close stops the cleanup goroutine. It is safe to call more than once.
func (c *completionCache) close() {
	c.once.Do(func() { close(c.stopCh) })
}

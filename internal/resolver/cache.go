package resolver

import (
	"sync"
	"time"

	"github.com/sufield/fedtrust/internal/domain"
)

// DefaultExpirySkew is subtracted from a chain's earliest statement expiry
// when computing cache lifetime, so entries drop out before any member of a
// served chain can expire mid-use.
const DefaultExpirySkew = 30 * time.Second

type cacheKey struct {
	subject domain.EntityID
	anchor  domain.EntityID
}

// Cache memoizes resolved trust chains keyed by (subject, anchor reached).
// Entries expire at the earliest statement expiry in the chain minus a
// safety skew; there is no size bound beyond expiry-based invalidation.
//
// The cache is constructed once per serving process and injected into the
// resolver, so tests substitute a fresh cache per case.
type Cache struct {
	mu      sync.RWMutex
	skew    time.Duration
	entries map[cacheKey]*Result
}

// NewCache creates a cache with the given expiry skew; a non-positive skew
// falls back to DefaultExpirySkew.
func NewCache(skew time.Duration) *Cache {
	if skew <= 0 {
		skew = DefaultExpirySkew
	}
	return &Cache{
		skew:    skew,
		entries: make(map[cacheKey]*Result),
	}
}

// Get returns the cached result for (subject, anchor) if it has not expired
// at now. An expired entry is treated as a miss and dropped lazily.
func (c *Cache) Get(subject, anchor domain.EntityID, now time.Time) (*Result, bool) {
	key := cacheKey{subject: subject, anchor: anchor}

	c.mu.RLock()
	res, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !now.Before(res.ExpiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have
		// refreshed the entry.
		if cur, still := c.entries[key]; still && !now.Before(cur.ExpiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return res, true
}

// Put stores a resolved result under (subject, anchor reached), overwriting
// any previous entry. Last writer for a key wins.
func (c *Cache) Put(res *Result) {
	key := cacheKey{subject: res.Chain.Leaf.Subject, anchor: res.Chain.AnchorID}
	c.mu.Lock()
	c.entries[key] = res
	c.mu.Unlock()
}

// Skew returns the configured expiry skew.
func (c *Cache) Skew() time.Duration {
	return c.skew
}

// Len reports the number of live and lazily-expired entries held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

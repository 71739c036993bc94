// Package sessions holds the transient, cache-only state of in-flight SRP
// exchanges: the server's secret ephemeral, keyed by username.
package sessions

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long a login initiation stays answerable.
const DefaultTTL = 5 * time.Minute

type entry struct {
	secret  []byte
	expires time.Time
}

// Cache is a TTL map of username to secret server ephemeral. One live entry
// per username: a second login initiation overwrites the first, invalidating
// any in-flight attempt. Entries are never persisted; expiry is the sole
// cleanup mechanism, applied lazily on access.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// NewCache constructs a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Put stores the secret ephemeral for username, replacing any live entry.
func (c *Cache) Put(username string, secret []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired()
	c.entries[username] = entry{secret: secret, expires: c.now().Add(c.ttl)}
}

// Get returns the live secret ephemeral for username, if any. It does not
// consume the entry: a password proof gated behind a second factor needs the
// same ephemeral again on the completion call.
func (c *Cache) Get(username string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[username]
	if !ok || !e.expires.After(c.now()) {
		delete(c.entries, username)
		return nil, false
	}
	return e.secret, true
}

// Delete removes the entry for username. Called when an exchange completes.
func (c *Cache) Delete(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, username)
}

// evictExpired drops dead entries. Caller holds the lock. This is memory
// hygiene only; Get ignores expired entries regardless.
func (c *Cache) evictExpired() {
	now := c.now()
	for k, e := range c.entries {
		if !e.expires.After(now) {
			delete(c.entries, k)
		}
	}
}

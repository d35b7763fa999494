// Package cache is an in-memory TTL cache for handler responses, keyed by a
// hash of the prompt material. Profile responses are never cached; they are
// too dynamic and may follow a mutation. The strategy, document, and
// prediction handlers consult it before spending on a completion call.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type Config struct {
	TTL        time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
	MaxEntries int           `envconfig:"MAX_ENTRIES" split_words:"true" default:"512"`
}

type entry struct {
	response  string
	expiresAt time.Time
	hits      int
}

// Cache is safe for concurrent use. A nil *Cache is a valid disabled cache;
// every method is a no-op miss on it.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func New(cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 512
	}
	return &Cache{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Key derives the cache key from the handler category and its prompt
// material. Truncated hex keeps keys short enough to eyeball in logs.
func Key(category, prompt string) string {
	sum := sha256.Sum256([]byte(category + ":" + prompt))
	return hex.EncodeToString(sum[:])[:32]
}

// Get returns the cached response for key, expiring stale entries on the
// way.
func (c *Cache) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	e.hits++
	c.entries[key] = e
	return e.response, true
}

// Set stores a response under the configured default TTL.
func (c *Cache) Set(key, response string) {
	c.SetWithTTL(key, response, 0)
}

// SetWithTTL stores a response with an explicit TTL. ttl <= 0 uses the
// configured default.
func (c *Cache) SetWithTTL(key, response string, ttl time.Duration) {
	if c == nil || key == "" || response == "" {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = entry{response: response, expiresAt: now.Add(ttl)}
}

// evictLocked drops expired entries, then the soonest-to-expire one if the
// cache is still full. Caller holds the mutex.
func (c *Cache) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var victim string
	var victimExpiry time.Time
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(victimExpiry) {
			victim = k
			victimExpiry = e.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

// Len reports the number of live entries, counting expired ones until they
// are touched.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// UntilMidnight returns the time left in the local day, floored at one
// hour. Date-bound entries, like a briefing built from today's schedule,
// expire with the day instead of the default TTL.
func UntilMidnight(now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
	d := midnight.Sub(now)
	if d < time.Hour {
		d = time.Hour
	}
	return d
}

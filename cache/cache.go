// Package cache is the lookaside in front of the store. It is bounded by item
// count with LRU eviction, every entry expires after a TTL, and confirmed
// misses can be remembered for a shorter TTL. It is never authoritative.
package cache

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"shortlink/links"
	"shortlink/metrics"
)

type entry struct {
	value    string
	negative bool
	expires  time.Time // zero: never
}

// shard serialises the read-check-write sequences on one LRU so an expiry
// or a negative insert never clobbers a value written concurrently.
type shard struct {
	mu  sync.Mutex
	lru *lru.Cache
}

// Cache splits its capacity over independent LRU shards so lookups of keys on
// different shards never wait on each other. With one shard eviction order is
// exact LRU.
type Cache struct {
	shards      []*shard
	ttl         time.Duration
	negativeTTL time.Duration
	now         func() time.Time
}

type Option func(*Cache)

// WithShards sets the shard count (default 16, capped at capacity).
func WithShards(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.shards = make([]*shard, n)
		}
	}
}

// WithNegativeTTL enables caching of confirmed-absent keys.
func WithNegativeTTL(d time.Duration) Option {
	return func(c *Cache) { c.negativeTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a cache holding at most capacity entries. ttl <= 0 disables
// expiry of positive entries.
func New(capacity int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("cache capacity must be positive, got %d", capacity)
	}
	c := &Cache{
		shards: make([]*shard, 16),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	n := len(c.shards)
	if n > capacity {
		n = capacity
		c.shards = c.shards[:n]
	}
	per := (capacity + n - 1) / n
	for i := range c.shards {
		l, err := lru.New(per)
		if err != nil {
			return nil, errors.Wrap(err, "create lru shard")
		}
		c.shards[i] = &shard{lru: l}
	}
	return c, nil
}

// CodeKey keys the code -> URL direction.
func CodeKey(code string) string { return "c:" + code }

// URLKey keys the URL -> code direction by the URL hash.
func URLKey(url string) string { return "u:" + links.HashURL(url) }

func (c *Cache) shard(key string) *shard {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

// Get returns the cached value. negative is true when the key was cached as
// confirmed absent. Expired entries are dropped and reported as misses.
func (c *Cache) Get(key string) (value string, negative bool, ok bool) {
	s := c.shard(key)
	s.mu.Lock()
	v, found := s.lru.Get(key)
	if !found {
		s.mu.Unlock()
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return "", false, false
	}
	e := v.(entry)
	if c.expired(e) {
		s.lru.Remove(key)
		s.mu.Unlock()
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return "", false, false
	}
	s.mu.Unlock()

	if e.negative {
		metrics.CacheLookups.WithLabelValues("negative").Inc()
		return "", true, true
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e.value, false, true
}

// Put stores value under key, replacing any negative entry.
func (c *Cache) Put(key, value string) {
	s := c.shard(key)
	s.mu.Lock()
	s.lru.Add(key, entry{value: value, expires: c.expiry(c.ttl)})
	s.mu.Unlock()
}

// PutNegative remembers that key is absent from the store. No-op unless a
// negative TTL is configured. A live positive entry is left alone: it was
// written after the miss was observed.
func (c *Cache) PutNegative(key string) {
	if c.negativeTTL <= 0 {
		return
	}
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.lru.Peek(key); ok {
		if e := v.(entry); !e.negative && !c.expired(e) {
			return
		}
	}
	s.lru.Add(key, entry{negative: true, expires: c.expiry(c.negativeTTL)})
}

func (c *Cache) Remove(key string) {
	s := c.shard(key)
	s.mu.Lock()
	s.lru.Remove(key)
	s.mu.Unlock()
}

// Len is the number of resident entries, expired ones included.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.lru.Len()
	}
	return n
}

func (c *Cache) expired(e entry) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

func (c *Cache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// Package memory provides an in-process challenge.Cache backed by a bounded
// LRU from github.com/hashicorp/golang-lru/v2.
//
// Operations on the same service name are serialized by one of a fixed set
// of striped locks; operations on different names usually proceed without
// contending. Expiry is enforced on read. An optional background sweep
// reclaims memory from entries that are never read again.
package memory

import (
	"context"
	"fmt"
	"hash/maphash"
	"sync"
	"time"

	"github.com/caseygil/attack-workbench-rest-api/challenge"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultMaxEntries bounds the number of outstanding challenges.
	DefaultMaxEntries = 10_000
	// DefaultSweepInterval is how often expired entries are purged.
	DefaultSweepInterval = 5 * time.Minute

	stripes = 64
)

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries sets the LRU capacity. When full the least recently used
// challenge is evicted, which the owning service observes as an absent
// challenge.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSweepInterval sets the background purge interval. Zero disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepInterval = d }
}

// Cache implements challenge.Cache in memory.
type Cache struct {
	entries *lru.Cache[string, *challenge.Challenge]
	locks   [stripes]sync.Mutex
	seed    maphash.Seed

	maxEntries    int
	sweepInterval time.Duration
	now           func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ challenge.Cache = (*Cache)(nil)

// New creates an in-memory cache and starts its sweeper unless disabled.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		seed:          maphash.MakeSeed(),
		maxEntries:    DefaultMaxEntries,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := lru.New[string, *challenge.Challenge](c.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	c.entries = entries

	if c.sweepInterval > 0 {
		go c.sweep()
	} else {
		close(c.done)
	}
	return c, nil
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	return &c.locks[maphash.String(c.seed, key)%stripes]
}

// Put implements challenge.Cache.
func (c *Cache) Put(_ context.Context, serviceName string, ch challenge.Challenge, ttl time.Duration) error {
	if ttl <= 0 {
		return challenge.ErrInvalidTTL
	}
	now := c.now()
	stored := ch
	stored.ServiceName = serviceName
	stored.Secret = append([]byte(nil), ch.Secret...)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.ExpiresAt = now.Add(ttl)

	mu := c.lockFor(serviceName)
	mu.Lock()
	c.entries.Add(serviceName, &stored)
	mu.Unlock()
	return nil
}

// TakeAndRemove implements challenge.Cache.
func (c *Cache) TakeAndRemove(_ context.Context, serviceName string) (*challenge.Challenge, error) {
	mu := c.lockFor(serviceName)
	mu.Lock()
	defer mu.Unlock()

	ch, ok := c.entries.Peek(serviceName)
	if !ok {
		return nil, nil
	}
	c.entries.Remove(serviceName)
	if ch.IsExpired(c.now()) {
		return nil, nil
	}
	return ch, nil
}

// Len reports the number of stored entries, including expired ones not yet
// purged.
func (c *Cache) Len() int { return c.entries.Len() }

// Close stops the sweeper and drops all entries.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		c.entries.Purge()
	})
	return nil
}

func (c *Cache) sweep() {
	defer close(c.done)
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

func (c *Cache) purgeExpired() {
	now := c.now()
	for _, key := range c.entries.Keys() {
		mu := c.lockFor(key)
		mu.Lock()
		if ch, ok := c.entries.Peek(key); ok && ch.IsExpired(now) {
			c.entries.Remove(key)
		}
		mu.Unlock()
	}
}

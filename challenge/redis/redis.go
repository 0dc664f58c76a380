// Package redis provides a challenge.Cache shared across processes via Redis.
//
// Entries are written with SET ... PX so Redis expires them, and consumed
// with GETDEL so a read and its removal are a single atomic server-side
// command. The stored deadline is re-checked on read to tolerate clock and
// expiry granularity differences. GETDEL requires Redis 6.2 or newer.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caseygil/attack-workbench-rest-api/challenge"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces challenge keys.
const DefaultKeyPrefix = "workbench:challenge:"

// Config contains configuration options for the Redis cache.
type Config struct {
	// Client is the Redis client instance. Required.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "workbench:challenge:"
	KeyPrefix string

	// Now overrides the clock used for the deadline re-check.
	Now func() time.Time
}

// EnvConfig is the environment-driven form of Config used by NewFromEnv.
type EnvConfig struct {
	// RedisAddr like "localhost:6379". ENV: WORKBENCH_REDIS_ADDR
	RedisAddr string `env:"WORKBENCH_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: WORKBENCH_REDIS_KEY_PREFIX
	KeyPrefix string `env:"WORKBENCH_REDIS_KEY_PREFIX,default=workbench:challenge:"`
}

// Cache implements challenge.Cache using Redis.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
	ownClient bool
}

var _ challenge.Cache = (*Cache)(nil)

// New creates a Redis-backed cache around an existing client. Close does not
// close a caller-supplied client.
func New(cfg Config) (*Cache, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{client: cfg.Client, keyPrefix: cfg.KeyPrefix, now: cfg.Now}, nil
}

// Dial connects to addr, verifies connectivity, and returns a cache that owns
// the client.
func Dial(ctx context.Context, addr, keyPrefix string) (*Cache, error) {
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	c, err := New(Config{Client: cl, KeyPrefix: keyPrefix})
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	c.ownClient = true
	return c, nil
}

// NewFromEnv builds a Cache using envdecode to populate EnvConfig.
func NewFromEnv(ctx context.Context) (*Cache, error) {
	var cfg EnvConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis env: %w", err)
	}
	return Dial(ctx, cfg.RedisAddr, cfg.KeyPrefix)
}

func (c *Cache) key(serviceName string) string {
	return c.keyPrefix + serviceName
}

// Put implements challenge.Cache.
func (c *Cache) Put(ctx context.Context, serviceName string, ch challenge.Challenge, ttl time.Duration) error {
	if ttl <= 0 {
		return challenge.ErrInvalidTTL
	}
	now := c.now()
	ch.ServiceName = serviceName
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.ExpiresAt = now.Add(ttl)

	b, err := json.Marshal(&ch)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}
	if err := c.client.Set(ctx, c.key(serviceName), b, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set challenge for %s: %w", serviceName, err)
	}
	return nil
}

// TakeAndRemove implements challenge.Cache.
func (c *Cache) TakeAndRemove(ctx context.Context, serviceName string) (*challenge.Challenge, error) {
	raw, err := c.client.GetDel(ctx, c.key(serviceName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to take challenge for %s: %w", serviceName, err)
	}
	var ch challenge.Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	if ch.IsExpired(c.now()) {
		return nil, nil
	}
	return &ch, nil
}

// Close closes the Redis client when the cache created it.
func (c *Cache) Close() error {
	if c.ownClient {
		return c.client.Close()
	}
	return nil
}

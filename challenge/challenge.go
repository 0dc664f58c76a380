// Package challenge defines the short-lived store for outstanding service
// authentication challenges.
//
// A challenge is created when a service asks to authenticate and consumed
// exactly once when it submits its proof. At most one challenge is live per
// service name: a second Put replaces the first. Entries expire lazily, so an
// implementation must never return an entry past its deadline even if it has
// not yet been evicted.
//
// Two implementations ship with this module:
//   - memory: a bounded in-process map for single-instance deployments
//   - redis:  a shared store for horizontally scaled deployments
//
// Both are exercised by the conformance suite in challengetest.
package challenge

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTTL is returned by Put when ttl is not positive.
var ErrInvalidTTL = errors.New("challenge: ttl must be positive")

// Challenge is a pending nonce issued to a service along with the secret
// the proof must be computed with.
type Challenge struct {
	ServiceName string    `json:"service_name"`
	Nonce       string    `json:"nonce"`
	Secret      []byte    `json:"secret"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the challenge's deadline has passed at now.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Cache stores at most one challenge per service name.
type Cache interface {
	// Put stores c under serviceName, replacing any existing entry and
	// resetting the deadline to now+ttl.
	Put(ctx context.Context, serviceName string, c Challenge, ttl time.Duration) error

	// TakeAndRemove atomically returns and deletes the entry for
	// serviceName. It returns (nil, nil) when no live entry exists: never
	// set, already taken, or expired. Of any number of concurrent callers
	// for one key, at most one observes the entry.
	TakeAndRemove(ctx context.Context, serviceName string) (*Challenge, error)

	// Close releases resources held by the cache.
	Close() error
}

// Package challengetest provides a conformance suite for challenge.Cache
// implementations.
package challengetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caseygil/attack-workbench-rest-api/challenge"
)

// CacheFactory creates a new, empty Cache for a single test. The suite
// closes it when the test ends.
type CacheFactory func(t *testing.T) challenge.Cache

// RunCacheTests runs the complete Cache test suite against the provided factory.
func RunCacheTests(t *testing.T, factory CacheFactory) {
	t.Run("PutThenTake", func(t *testing.T) { testPutThenTake(t, factory) })
	t.Run("TakeIsReadOnce", func(t *testing.T) { testTakeIsReadOnce(t, factory) })
	t.Run("TakeNeverSet", func(t *testing.T) { testTakeNeverSet(t, factory) })
	t.Run("PutOverwrites", func(t *testing.T) { testPutOverwrites(t, factory) })
	t.Run("ExpiredEntryIsAbsent", func(t *testing.T) { testExpiredEntryIsAbsent(t, factory) })
	t.Run("DistinctKeysAreIndependent", func(t *testing.T) { testDistinctKeys(t, factory) })
	t.Run("InvalidTTL", func(t *testing.T) { testInvalidTTL(t, factory) })
	t.Run("Concurrency_ExactlyOneTaker", func(t *testing.T) { testExactlyOneTaker(t, factory) })
	t.Run("Concurrency_ManyKeys", func(t *testing.T) { testManyKeys(t, factory) })
}

func newCache(t *testing.T, factory CacheFactory) challenge.Cache {
	t.Helper()
	c := factory(t)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// uniqueName keeps keys distinct across runs against shared backends.
func uniqueName(base string) string {
	return base + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

func entry(name, nonce string) challenge.Challenge {
	now := time.Now()
	return challenge.Challenge{
		ServiceName: name,
		Nonce:       nonce,
		Secret:      []byte("k1"),
		CreatedAt:   now,
	}
}

func testPutThenTake(t *testing.T, factory CacheFactory) {
	c := newCache(t, factory)
	ctx := context.Background()
	name := uniqueName("svc-A")

	if err := c.Put(ctx, name, entry(name, "n1"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := c.TakeAndRemove(ctx, name)
	if err != nil {
		t.Fatalf("TakeAndRemove: %v", err)
	}
	if got == nil {
		t.Fatalf("expected entry, got nil")
	}
	if got.Nonce != "n1" || string(got.Secret) != "k1" || got.ServiceName != name {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.ExpiresAt.IsZero() {
		t.Fatalf("expected deadline to be recorded")
	}
}

func testTakeIsReadOnce(t *testing.T, factory CacheFactory) {
	c := newCache(t, factory)
	ctx := context.Background()
	name := uniqueName("svc-A")

	if err := c.Put(ctx, name, entry(name, "n1"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, err := c.TakeAndRemove(ctx, name); err != nil || got == nil {
		t.Fatalf("first take: got %v, err %v", got, err)
	}
	got, err := c.TakeAndRemove(ctx, name)
	if err != nil {
		t.Fatalf("second take: %v", err)
	}
	if got != nil {
		t.Fatalf("second take must be absent, got %+v", got)
	}
}

func testTakeNeverSet(t *testing.T, factory CacheFactory) {
	c := newCache(t, factory)
	got, err := c.TakeAndRemove(context.Background(), uniqueName("never"))
	if err != nil {
		t.Fatalf("TakeAndRemove: %v", err)
	}
	if got != nil {
		t.Fatalf("expected absent, got %+v", got)
	}
}

func testPutOverwrites(t *testing.T, factory CacheFactory) {
	c := newCache(t, factory)
	ctx := context.Background()
	name := uniqueName("svc-A")

	if err := c.Put(ctx, name, entry(name, "n1"), time.Minute); err != nil {
		t.Fatalf("Put n1: %v", err)
	}
	if err := c.Put(ctx, name, entry(name, "n2"), time.Minute); err != nil {
		t.Fatalf("Put n2: %v", err)
	}
	got, err := c.TakeAndRemove(ctx, name)
	if err != nil || got == nil {
		t.Fatalf("take: got %v, err %v", got, err)
	}
	if got.Nonce != "n2" {
		t.Fatalf("want latest nonce n2, got %s", got.Nonce)
	}
	if again, _ := c.TakeAndRemove(ctx, name); again != nil {
		t.Fatalf("overwritten entry must not survive: %+v", again)
	}
}

func testExpiredEntryIsAbsent(t *testing.T, factory CacheFactory) {
	c := newCache(t, factory)
	ctx := context.Background()
	name := uniqueName("svc-A")

	if err := c.Put(ctx, name, entry(name, "n1"), 50*time.Millisecond); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	got, err := c.TakeAndRemove(ctx, name)
	if err != nil {
		t.Fatalf("TakeAndRemove: %v", err)
	}
	if got != nil {
		t.Fatalf("expired entry returned: %+v", got)
	}
}

func testDistinctKeys(t *testing.T, factory CacheFactory) {
	c := newCache(t, factory)
	ctx := context.Background()
	a, b := uniqueName("svc-A"), uniqueName("svc-B")

	if err := c.Put(ctx, a, entry(a, "na"), time.Minute); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := c.Put(ctx, b, entry(b, "nb"), time.Minute); err != nil {
		t.Fatalf("Put b: %v", err)
	}
	if got, _ := c.TakeAndRemove(ctx, a); got == nil || got.Nonce != "na" {
		t.Fatalf("take a: %+v", got)
	}
	if got, _ := c.TakeAndRemove(ctx, b); got == nil || got.Nonce != "nb" {
		t.Fatalf("take b must be unaffected by a: %+v", got)
	}
}

func testInvalidTTL(t *testing.T, factory CacheFactory) {
	c := newCache(t, factory)
	name := uniqueName("svc-A")
	for _, ttl := range []time.Duration{0, -time.Second} {
		if err := c.Put(context.Background(), name, entry(name, "n"), ttl); !errors.Is(err, challenge.ErrInvalidTTL) {
			t.Fatalf("ttl %v: want ErrInvalidTTL, got %v", ttl, err)
		}
	}
}

func testExactlyOneTaker(t *testing.T, factory CacheFactory) {
	c := newCache(t, factory)
	ctx := context.Background()
	name := uniqueName("svc-A")

	if err := c.Put(ctx, name, entry(name, "n1"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	const takers = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < takers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got, err := c.TakeAndRemove(ctx, name)
			if err != nil {
				t.Errorf("TakeAndRemove: %v", err)
				return
			}
			if got != nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if n := winners.Load(); n != 1 {
		t.Fatalf("want exactly one successful take, got %d", n)
	}
}

func testManyKeys(t *testing.T, factory CacheFactory) {
	c := newCache(t, factory)
	ctx := context.Background()
	base := uniqueName("svc")

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := base + "-" + strconv.Itoa(i)
			nonce := "n" + strconv.Itoa(i)
			if err := c.Put(ctx, name, entry(name, nonce), time.Minute); err != nil {
				t.Errorf("Put %s: %v", name, err)
				return
			}
			got, err := c.TakeAndRemove(ctx, name)
			if err != nil {
				t.Errorf("TakeAndRemove %s: %v", name, err)
				return
			}
			if got == nil || got.Nonce != nonce {
				t.Errorf("%s: want nonce %s, got %+v", name, nonce, got)
			}
		}(i)
	}
	wg.Wait()
}

// Package tiered layers an in-process cache over a shared remote one.
package tiered

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/CredForge/internal/adapter/otel"
	"github.com/Strob0t/CredForge/internal/port/cache"
	"github.com/Strob0t/CredForge/internal/resilience"
)

// Tier names reported to metrics.
const (
	tierL1          = "l1"
	tierL2          = "l2"
	tierMiss        = "miss"
	tierUnavailable = "unavailable"
)

// Cache reads L1 then L2 and backfills L1 from L2 hits. Writes go to both.
// Every L2 call runs through the breaker; an L2 failure leaves L1 consistent
// and is reported as cache.ErrUnavailable. Concurrent L2 reads of one key
// share a single round trip.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
	breaker  *resilience.Breaker
	group    singleflight.Group
	metrics  *cfotel.Metrics
}

// New creates a tiered cache. l1Expire caps how long an entry may live in L1,
// which bounds how stale a node can get if it misses an invalidation.
// breaker may be nil.
func New(l1, l2 cache.Cache, l1Expire time.Duration, breaker *resilience.Breaker) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire, breaker: breaker}
}

// SetMetrics enables per-tier lookup counters.
func (c *Cache) SetMetrics(m *cfotel.Metrics) {
	c.metrics = m
}

func (c *Cache) l1TTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1Expire {
		return c.l1Expire
	}
	return ttl
}

func (c *Cache) remote(fn func() error) error {
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(fn)
	} else {
		err = fn()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", cache.ErrUnavailable, err)
	}
	return nil
}

type l2Result struct {
	val   []byte
	found bool
}

// Get serves from L1 when possible and falls back to L2.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		c.metrics.TierLookup(ctx, tierL1)
		return val, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		var r l2Result
		err := c.remote(func() error {
			var getErr error
			r.val, r.found, getErr = c.l2.Get(ctx, key)
			return getErr
		})
		if err != nil {
			return nil, err
		}
		if r.found {
			_ = c.l1.Set(ctx, key, r.val, c.l1TTL(0))
		}
		return r, nil
	})
	if err != nil {
		c.metrics.TierLookup(ctx, tierUnavailable)
		return nil, false, err
	}

	r := v.(l2Result)
	if !r.found {
		c.metrics.TierLookup(ctx, tierMiss)
		return nil, false, nil
	}
	c.metrics.TierLookup(ctx, tierL2)
	// Shared callers must not alias one slice.
	return append([]byte(nil), r.val...), true, nil
}

// Set writes L1 first so this node sees its own write even when L2 is down.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, c.l1TTL(ttl)); err != nil {
		return err
	}
	return c.remote(func() error { return c.l2.Set(ctx, key, value, ttl) })
}

// Delete clears L1 even when L2 fails.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.group.Forget(key)
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote(func() error { return c.l2.Delete(ctx, key) })
}

// DeleteLocal removes key from L1 only. It serves invalidation broadcasts
// from other nodes, which have already cleared L2.
func (c *Cache) DeleteLocal(ctx context.Context, key string) error {
	c.group.Forget(key)
	return c.l1.Delete(ctx, key)
}

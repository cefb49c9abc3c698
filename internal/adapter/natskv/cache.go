// Package natskv is the shared (L2) tier of the credential cache, backed by
// a JetStream key-value bucket. Entry lifetime is the bucket's MaxAge.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// keyReplacer maps characters NATS KV rejects onto allowed ones. Cache keys
// use ':' as a separator; KV keys allow [-/_=.a-zA-Z0-9].
var keyReplacer = strings.NewReplacer(":", ".", " ", "_", "*", "_", ">", "_")

// Cache stores sealed credential values in a KV bucket.
type Cache struct {
	kv jetstream.KeyValue
}

// New wraps kv.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Key converts a cache key into a valid KV key.
func Key(key string) string {
	return keyReplacer.Replace(key)
}

func missing(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

// Get returns the latest value under key.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, Key(key))
	switch {
	case err == nil:
		return entry.Value(), true, nil
	case missing(err):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("kv get: %w", err)
	}
}

// Set stores value. The ttl argument is ignored: the bucket expires entries.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, Key(key), value); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

// Delete purges key including its history, so earlier sealed values cannot
// be read back from older revisions.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.kv.Purge(ctx, Key(key)); err != nil && !missing(err) {
		return fmt.Errorf("kv purge: %w", err)
	}
	return nil
}

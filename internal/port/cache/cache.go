// Package cache is the port for the credential cache backends.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a backend that cannot be reached right now. The
// credential cache is best-effort, so callers log it and read storage.
var ErrUnavailable = errors.New("cache unavailable")

// Cache stores opaque byte values. Credential values are sealed before they
// reach an implementation, so none of them ever hold plaintext secrets.
//
// Get reports a miss as (nil, false, nil). Delete of an absent key succeeds.
// A ttl <= 0 means the backend's default lifetime.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

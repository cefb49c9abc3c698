package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cfotel "github.com/Strob0t/CredForge/internal/adapter/otel"
	"github.com/Strob0t/CredForge/internal/crypto"
	"github.com/Strob0t/CredForge/internal/domain/credential"
	"github.com/Strob0t/CredForge/internal/port/cache"
)

// DefaultCredentialsTTL is how long decrypted credentials stay cached.
const DefaultCredentialsTTL = 24 * time.Hour

// CacheType separates cache entries of different record kinds that may share
// an identity id.
type CacheType string

const (
	CacheTypeProvider      CacheType = "provider"
	CacheTypeProviderModel CacheType = "provider_model"
)

// CredentialsCacheKey identifies one cached credential map. Version is the
// record version the entry was decrypted from. It is kept in the cached value
// rather than the backend key, so Delete drops every version at once.
type CredentialsCacheKey struct {
	TenantID   string
	IdentityID string
	CacheType  CacheType
	Version    int
}

type cachedCredentials struct {
	Version     int                    `json:"v"`
	Credentials credential.Credentials `json:"c"`
}

// String renders the key as stored in the cache backend.
func (k CredentialsCacheKey) String() string {
	return fmt.Sprintf("provider_credentials:tenant_id:%s:id:%s:%s", k.TenantID, k.IdentityID, k.CacheType)
}

// CredentialsCache caches decrypted credential maps. Values are sealed before
// they reach the backend. An entry written for another record version reads
// as a miss. Every failure is logged and reported as a miss: callers always
// fall back to decrypting the stored record.
type CredentialsCache struct {
	cache   cache.Cache
	sealer  *crypto.Sealer
	ttl     time.Duration
	metrics *cfotel.Metrics
}

// NewCredentialsCache creates a CredentialsCache. A ttl <= 0 selects
// DefaultCredentialsTTL.
func NewCredentialsCache(c cache.Cache, sealer *crypto.Sealer, ttl time.Duration) *CredentialsCache {
	if ttl <= 0 {
		ttl = DefaultCredentialsTTL
	}
	return &CredentialsCache{cache: c, sealer: sealer, ttl: ttl}
}

// SetMetrics enables hit/miss counting.
func (c *CredentialsCache) SetMetrics(m *cfotel.Metrics) {
	c.metrics = m
}

// Get returns the cached credentials for key.
func (c *CredentialsCache) Get(ctx context.Context, key CredentialsCacheKey) (credential.Credentials, bool) {
	creds, ok, err := c.get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "credentials cache get failed", "key", key.String(), "error", err)
	}
	c.metrics.CacheLookup(ctx, string(key.CacheType), ok)
	return creds, ok
}

func (c *CredentialsCache) get(ctx context.Context, key CredentialsCacheKey) (credential.Credentials, bool, error) {
	sealed, ok, err := c.cache.Get(ctx, key.String())
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}
	raw, err := c.sealer.Open(sealed)
	if err != nil {
		// Sealed by a node with a different secret, or corrupted.
		return nil, false, fmt.Errorf("open cached value: %w", err)
	}
	var entry cachedCredentials
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cached value: %w", err)
	}
	if entry.Version != key.Version {
		return nil, false, nil
	}
	return entry.Credentials, true, nil
}

// Set stores creds under key with the configured TTL.
func (c *CredentialsCache) Set(ctx context.Context, key CredentialsCacheKey, creds credential.Credentials) {
	if err := c.set(ctx, key, creds); err != nil {
		slog.WarnContext(ctx, "credentials cache set failed", "key", key.String(), "error", err)
	}
}

func (c *CredentialsCache) set(ctx context.Context, key CredentialsCacheKey, creds credential.Credentials) error {
	raw, err := json.Marshal(cachedCredentials{Version: key.Version, Credentials: creds})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	sealed, err := c.sealer.Seal(raw)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}
	if err := c.cache.Set(ctx, key.String(), sealed, c.ttl); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	return nil
}

// Delete removes key. A failure leaves a stale entry that expires with its TTL.
func (c *CredentialsCache) Delete(ctx context.Context, key CredentialsCacheKey) {
	if err := c.cache.Delete(ctx, key.String()); err != nil {
		slog.WarnContext(ctx, "credentials cache delete failed", "key", key.String(),
			"error", fmt.Errorf("%w: %w", ErrCacheUnavailable, err))
	}
}

// Exists reports whether a readable entry is cached for key.
func (c *CredentialsCache) Exists(ctx context.Context, key CredentialsCacheKey) bool {
	_, ok, err := c.get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "credentials cache exists failed", "key", key.String(), "error", err)
	}
	return ok
}

// RefreshTTL restarts the TTL of an existing entry. It reports whether the
// entry was present.
func (c *CredentialsCache) RefreshTTL(ctx context.Context, key CredentialsCacheKey) bool {
	creds, ok, err := c.get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "credentials cache refresh failed", "key", key.String(), "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := c.set(ctx, key, creds); err != nil {
		slog.WarnContext(ctx, "credentials cache refresh failed", "key", key.String(), "error", err)
		return false
	}
	return true
}

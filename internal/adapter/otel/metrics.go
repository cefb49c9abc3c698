package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "credforge"

// Metrics holds all CredForge metric instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	TierLookups     metric.Int64Counter
	DecryptFailures metric.Int64Counter
	Writes          metric.Int64Counter
	ResolveDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CacheHits, err = meter.Int64Counter("credforge.credentials.cache.hits",
		metric.WithDescription("Credential cache hits"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("credforge.credentials.cache.misses",
		metric.WithDescription("Credential cache misses"))
	if err != nil {
		return nil, err
	}

	m.TierLookups, err = meter.Int64Counter("credforge.cache.tier.lookups",
		metric.WithDescription("Tiered cache lookups by the tier that answered"))
	if err != nil {
		return nil, err
	}

	m.DecryptFailures, err = meter.Int64Counter("credforge.credentials.decrypt.failures",
		metric.WithDescription("Stored credentials that failed to decrypt"))
	if err != nil {
		return nil, err
	}

	m.Writes, err = meter.Int64Counter("credforge.credentials.writes",
		metric.WithDescription("Credential write operations"))
	if err != nil {
		return nil, err
	}

	m.ResolveDuration, err = meter.Float64Histogram("credforge.configurations.resolve.duration_seconds",
		metric.WithDescription("Time to build a tenant's provider configurations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// CacheLookup counts a cache hit or miss for cacheType.
func (m *Metrics) CacheLookup(ctx context.Context, cacheType string, hit bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cache.type", cacheType))
	if hit {
		m.CacheHits.Add(ctx, 1, attrs)
		return
	}
	m.CacheMisses.Add(ctx, 1, attrs)
}

// TierLookup counts which tier answered a lookup: "l1", "l2", "miss" or
// "unavailable".
func (m *Metrics) TierLookup(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.TierLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.tier", tier)))
}

// DecryptFailed counts a record whose secrets could not be decrypted.
func (m *Metrics) DecryptFailed(ctx context.Context, providerName string) {
	if m == nil {
		return
	}
	m.DecryptFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", providerName)))
}

// Write counts a credential write operation and its outcome.
func (m *Metrics) Write(ctx context.Context, op, providerName string, err error) {
	if m == nil {
		return
	}
	m.Writes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("provider", providerName),
		attribute.Bool("success", err == nil),
	))
}

// Resolved records how long building configurations took.
func (m *Metrics) Resolved(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.ResolveDuration.Record(ctx, seconds)
}

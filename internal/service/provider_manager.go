package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/CredForge/internal/adapter/otel"
	"github.com/Strob0t/CredForge/internal/domain/credential"
	"github.com/Strob0t/CredForge/internal/domain/provider"
	"github.com/Strob0t/CredForge/internal/port/database"
	"github.com/Strob0t/CredForge/internal/port/messagequeue"
)

// Codec encrypts and decrypts tenant secrets field by field.
type Codec interface {
	credential.Encrypter
	credential.Decrypter
}

const defaultDecryptConcurrency = 8

// ProviderManager resolves tenant provider configurations and owns the
// credential write path.
type ProviderManager struct {
	store   database.Store
	schemas provider.SchemaRegistry
	hosting *HostingConfiguration
	codec   Codec
	cache   *CredentialsCache
	queue   messagequeue.Publisher
	nodeID  string
	metrics *cfotel.Metrics

	decryptLimit int
	inflight     *singleflight.Group
	// shared is the root manager's group, kept by WithStore copies so a
	// committed write can detach reads that started before it.
	shared *singleflight.Group
}

// NewProviderManager creates a ProviderManager. decryptLimit bounds
// concurrent record decryption while building configurations.
func NewProviderManager(
	store database.Store,
	schemas provider.SchemaRegistry,
	hosting *HostingConfiguration,
	codec Codec,
	cache *CredentialsCache,
	decryptLimit int,
) *ProviderManager {
	if decryptLimit <= 0 {
		decryptLimit = defaultDecryptConcurrency
	}
	group := &singleflight.Group{}
	return &ProviderManager{
		store:        store,
		schemas:      schemas,
		hosting:      hosting,
		codec:        codec,
		cache:        cache,
		decryptLimit: decryptLimit,
		inflight:     group,
		shared:       group,
	}
}

// SetQueue enables cross-node cache invalidation. nodeID tags broadcasts so
// this node can ignore its own messages.
func (m *ProviderManager) SetQueue(q messagequeue.Publisher, nodeID string) {
	m.queue = q
	m.nodeID = nodeID
}

// SetMetrics enables write and resolution metrics.
func (m *ProviderManager) SetMetrics(metrics *cfotel.Metrics) {
	m.metrics = metrics
}

// WithStore returns a copy of m bound to store, typically a transaction
// handed out by database.Store.InTx. The copy does not share in-flight
// reads with m, since it may observe uncommitted rows.
func (m *ProviderManager) WithStore(store database.Store) *ProviderManager {
	c := *m
	c.store = store
	c.inflight = &singleflight.Group{}
	return &c
}

// GetConfigurations builds the provider configurations of a tenant,
// restricted by filter. Each call yields fresh snapshots; concurrent calls
// for the same tenant share one build, unless a write of this manager
// committed after that build started.
func (m *ProviderManager) GetConfigurations(ctx context.Context, tenantID string, filter provider.Filter) (*provider.Configurations, error) {
	v, err, _ := m.inflight.Do(tenantID, func() (any, error) {
		return m.buildConfigurations(context.WithoutCancel(ctx), tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*provider.Configurations).Filter(filter), nil
}

// GetConfiguration returns the configuration of one provider.
func (m *ProviderManager) GetConfiguration(ctx context.Context, tenantID, providerName string) (*provider.Configuration, error) {
	cfgs, err := m.GetConfigurations(ctx, tenantID, provider.Filter{Include: []string{providerName}})
	if err != nil {
		return nil, err
	}
	cfg, ok := cfgs.Get(providerName)
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", providerName, ErrUnknownProvider)
	}
	return cfg, nil
}

// forget makes the next read of tenantID start a new build.
func (m *ProviderManager) forget(tenantID string) {
	m.shared.Forget(tenantID)
}

func (m *ProviderManager) buildConfigurations(ctx context.Context, tenantID string) (_ *provider.Configurations, err error) {
	ctx, span := cfotel.StartResolveSpan(ctx, tenantID)
	defer func() { cfotel.EndSpan(span, err) }()
	start := time.Now()
	defer func() { m.metrics.Resolved(ctx, time.Since(start).Seconds()) }()

	// Reads run one after another: a transaction-bound store is not safe for
	// concurrent use.
	records, err := m.store.ListProviderRecords(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list provider records: %w", err)
	}
	modelRecords, err := m.store.ListProviderModelRecords(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list provider model records: %w", err)
	}
	preferred, err := m.store.ListPreferredProviderTypes(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list preferred provider types: %w", err)
	}
	settings, err := m.store.ListModelSettings(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list model settings: %w", err)
	}

	customCreds, modelCreds, err := m.decryptRecords(ctx, tenantID, records, modelRecords)
	if err != nil {
		return nil, err
	}

	schemas := m.schemas.List()
	cfgs := make([]*provider.Configuration, 0, len(schemas))
	for _, schema := range schemas {
		name := schema.Provider

		var system []provider.Record
		var custom provider.CustomConfiguration
		for i := range records {
			r := &records[i]
			if r.ProviderName != name {
				continue
			}
			switch r.ProviderType {
			case provider.ProviderTypeSystem:
				system = append(system, *r)
			case provider.ProviderTypeCustom:
				if creds, ok := customCreds[r.ID]; ok && r.IsValid {
					custom.Provider = &provider.CustomProviderConfiguration{Credentials: creds}
				}
			}
		}
		for i := range modelRecords {
			r := &modelRecords[i]
			if r.ProviderName != name || !r.IsValid {
				continue
			}
			if creds, ok := modelCreds[r.ID]; ok {
				custom.Models = append(custom.Models, provider.CustomModelConfiguration{
					Model:       r.ModelName,
					ModelType:   r.ModelType,
					Credentials: creds,
				})
			}
		}

		var pref *provider.PreferredTypeRecord
		for i := range preferred {
			if preferred[i].ProviderName == name {
				pref = &preferred[i]
				break
			}
		}

		var ms []provider.ModelSettings
		for _, s := range settings {
			if s.ProviderName == name {
				ms = append(ms, provider.ModelSettings{Model: s.ModelName, ModelType: s.ModelType, Enabled: s.Enabled})
			}
		}

		cfgs = append(cfgs, provider.NewConfiguration(tenantID, schema, pref,
			m.hosting.SystemConfiguration(name, system), custom, ms))
	}
	return provider.NewConfigurations(tenantID, cfgs...), nil
}

// decryptRecords returns plaintext credentials keyed by record id. Records
// of unknown providers are skipped. A record that cannot be decrypted is
// logged and left out, so one broken row does not hide every provider.
func (m *ProviderManager) decryptRecords(ctx context.Context, tenantID string, records []provider.Record, modelRecords []provider.ModelRecord) (custom, models map[string]credential.Credentials, err error) {
	type job struct {
		id, providerName string
		version          int
		cacheType        CacheType
		blob             []byte
		secretVars       []string
	}
	var jobs []job
	for i := range records {
		r := &records[i]
		schema, ok := m.schemas.Get(r.ProviderName)
		if !ok || r.ProviderType != provider.ProviderTypeCustom {
			continue
		}
		jobs = append(jobs, job{r.ID, r.ProviderName, r.Version, CacheTypeProvider, r.EncryptedConfig, schema.ProviderSecretVariables()})
	}
	for i := range modelRecords {
		r := &modelRecords[i]
		schema, ok := m.schemas.Get(r.ProviderName)
		if !ok {
			continue
		}
		jobs = append(jobs, job{r.ID, r.ProviderName, r.Version, CacheTypeProviderModel, r.EncryptedConfig, schema.ModelSecretVariables()})
	}

	results := make([]credential.Credentials, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.decryptLimit)
	for i, j := range jobs {
		g.Go(func() error {
			// The version ties the entry to the row just listed: a reader that
			// decrypted a row replaced by a concurrent write caches it under
			// the old version, which later reads treat as a miss.
			key := CredentialsCacheKey{TenantID: tenantID, IdentityID: j.id, CacheType: j.cacheType, Version: j.version}
			if creds, ok := m.cache.Get(gctx, key); ok {
				results[i] = creds
				return nil
			}
			creds, err := m.decryptBlob(gctx, tenantID, j.blob, j.secretVars)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				m.metrics.DecryptFailed(gctx, j.providerName)
				slog.ErrorContext(gctx, "stored credentials unreadable",
					"tenant_id", tenantID, "record_id", j.id, "provider", j.providerName, "error", err)
				return nil
			}
			m.cache.Set(gctx, key, creds)
			results[i] = creds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	custom = make(map[string]credential.Credentials)
	models = make(map[string]credential.Credentials)
	for i, j := range jobs {
		if results[i] == nil {
			continue
		}
		if j.cacheType == CacheTypeProvider {
			custom[j.id] = results[i]
		} else {
			models[j.id] = results[i]
		}
	}
	return custom, models, nil
}

func (m *ProviderManager) decryptBlob(ctx context.Context, tenantID string, blob []byte, secretVars []string) (credential.Credentials, error) {
	stored, err := credential.Unmarshal(blob)
	if err != nil {
		return nil, err
	}
	return credential.DecryptSecrets(ctx, stored, secretVars, m.codec, tenantID)
}

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CredForge/internal/adapter/keystore"
	cfnats "github.com/Strob0t/CredForge/internal/adapter/nats"
	"github.com/Strob0t/CredForge/internal/adapter/natskv"
	cfotel "github.com/Strob0t/CredForge/internal/adapter/otel"
	"github.com/Strob0t/CredForge/internal/adapter/postgres"
	"github.com/Strob0t/CredForge/internal/adapter/ristretto"
	"github.com/Strob0t/CredForge/internal/adapter/tiered"
	"github.com/Strob0t/CredForge/internal/adapter/yamlschema"
	"github.com/Strob0t/CredForge/internal/config"
	"github.com/Strob0t/CredForge/internal/crypto"
	"github.com/Strob0t/CredForge/internal/resilience"
	"github.com/Strob0t/CredForge/internal/secrets"
	"github.com/Strob0t/CredForge/internal/service"
)

// sealerInfo separates the cache sealing key from other uses of the secret.
const sealerInfo = "credforge credentials cache v1"

// app holds the wired infrastructure and services shared by serve and admin.
type app struct {
	cfg       *config.Config
	nodeID    string
	pool      *pgxpool.Pool
	store     *postgres.Store
	queue     *cfnats.Queue
	l1        *ristretto.Cache
	cache     *tiered.Cache
	vault     *secrets.Vault
	keys      *keystore.FileStore
	providers *service.ProviderManager
	tenants   *service.TenantService

	closers []func()
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// ready reports whether the node can serve credentials: PostgreSQL answers
// and NATS is connected. A degraded L2 cache does not make the node unready.
func (a *app) ready(ctx context.Context) error {
	if !a.queue.IsConnected() {
		return errors.New("nats disconnected")
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}

// newApp connects to PostgreSQL and NATS and builds the credential services.
// metrics may be nil.
func newApp(ctx context.Context, cfg *config.Config, metrics *cfotel.Metrics) (_ *app, err error) {
	a := &app{cfg: cfg, nodeID: uuid.NewString()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// PostgreSQL
	a.pool, err = postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, a.pool.Close)
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")
	a.store = postgres.NewStore(a.pool)

	// NATS
	a.queue, err = cfnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.queue.Close() })

	// Cache: ristretto L1 + NATS KV L2 behind a breaker
	a.l1, err = ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	a.closers = append(a.closers, a.l1.Close)

	kv, err := a.queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return nil, fmt.Errorf("l2 cache: %w", err)
	}
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	breaker.OnStateChange(func(from, to string) {
		slog.Warn("cache breaker state changed", "from", from, "to", to)
	})
	a.cache = tiered.New(a.l1, natskv.New(kv), cfg.Cache.L1TTL, breaker)
	a.cache.SetMetrics(metrics)

	cacheSecret := cfg.Crypto.CacheSecret
	if cacheSecret == "" {
		cacheSecret, err = randomSecret()
		if err != nil {
			return nil, fmt.Errorf("cache secret: %w", err)
		}
		slog.Warn("crypto.cache_secret not set, using a per-process secret; shared cache entries from other nodes will miss")
	}
	sealer, err := crypto.NewSealer(cacheSecret, sealerInfo)
	if err != nil {
		return nil, fmt.Errorf("sealer: %w", err)
	}

	// Hosted provider secrets
	a.vault, err = secrets.NewVault(hostingLoader(cfg.Hosting))
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	schemas, err := yamlschema.Load(cfg.Schema.Path)
	if err != nil {
		return nil, fmt.Errorf("provider schemas: %w", err)
	}

	a.keys = keystore.NewFileStore(cfg.Crypto.KeyDir)
	a.tenants = service.NewTenantService(a.store, a.keys)
	codec := service.NewEncrypter(keystore.NewComposite(a.store, a.keys))

	credCache := service.NewCredentialsCache(a.cache, sealer, cfg.Cache.CredentialsTTL)
	credCache.SetMetrics(metrics)

	a.providers = service.NewProviderManager(
		a.store,
		schemas,
		service.NewHostingConfiguration(cfg.Hosting, a.vault),
		codec,
		credCache,
		cfg.Crypto.DecryptConcurrency,
	)
	a.providers.SetQueue(a.queue, a.nodeID)
	a.providers.SetMetrics(metrics)

	return a, nil
}

// hostingLoader reads every secret key referenced by hosted providers from the
// environment, overlaid by the optional secrets file.
func hostingLoader(h config.Hosting) secrets.Loader {
	var keys []string
	for _, p := range h.Providers {
		for _, key := range p.Credentials {
			keys = append(keys, key)
		}
	}
	loaders := []secrets.Loader{secrets.EnvLoader(keys...)}
	if h.SecretsFile != "" {
		loaders = append(loaders, secrets.FileLoader(h.SecretsFile))
	}
	return secrets.ChainLoader(loaders...)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

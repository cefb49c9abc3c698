package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/CredForge/internal/config"
	"github.com/Strob0t/CredForge/internal/crypto"
	"github.com/Strob0t/CredForge/internal/domain"
	"github.com/Strob0t/CredForge/internal/domain/provider"
	"github.com/Strob0t/CredForge/internal/domain/tenant"
	"github.com/Strob0t/CredForge/internal/port/database"
	"github.com/Strob0t/CredForge/internal/port/keystore"
	"github.com/Strob0t/CredForge/internal/port/messagequeue"
	"github.com/Strob0t/CredForge/internal/secrets"
)

const testTenantID = "3f6c1d2e-8a4b-4c5d-9e7f-112233445566"

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

type storeState struct {
	nextID    int
	providers []provider.Record
	models    []provider.ModelRecord
	preferred []provider.PreferredTypeRecord
	settings  []provider.ModelSettingRecord
	tenants   []tenant.Tenant
}

func (s *storeState) clone() *storeState {
	c := *s
	c.providers = append([]provider.Record(nil), s.providers...)
	c.models = append([]provider.ModelRecord(nil), s.models...)
	c.preferred = append([]provider.PreferredTypeRecord(nil), s.preferred...)
	c.settings = append([]provider.ModelSettingRecord(nil), s.settings...)
	c.tenants = append([]tenant.Tenant(nil), s.tenants...)
	return &c
}

func (s *storeState) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// mockStore is an in-memory database.Store. InTx works on a copy of the
// state and only publishes it when fn succeeds.
type mockStore struct {
	mu    *sync.Mutex
	state *storeState
	inTx  bool

	// Error hooks — set these to inject failures.
	listErr            error
	updateProviderErr  error
	upsertPreferredErr error
	createWithoutID    bool

	// afterList runs once ListProviderRecords has read its rows.
	afterList func()
}

func newMockStore() *mockStore {
	return &mockStore{mu: &sync.Mutex{}, state: &storeState{}}
}

func (m *mockStore) InTx(ctx context.Context, fn func(tx database.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	tx := *m
	tx.state = m.state.clone()
	tx.inTx = true
	m.mu.Unlock()

	if err := fn(&tx); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = tx.state
	m.mu.Unlock()
	return nil
}

func (m *mockStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *mockStore) GetProviderRecord(_ context.Context, tenantID, providerName string, t provider.ProviderType) (*provider.Record, error) {
	defer m.lock()()
	for _, r := range m.state.providers {
		if r.TenantID == tenantID && r.ProviderName == providerName && r.ProviderType == t {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListProviderRecords(_ context.Context, tenantID string) ([]provider.Record, error) {
	out, err := m.listProviderRecords(tenantID)
	if m.afterList != nil {
		m.afterList()
	}
	return out, err
}

// pauseAfterFirstList holds the first ListProviderRecords call, with the rows
// it read, until release is called. listed is closed once it is held.
func (m *mockStore) pauseAfterFirstList() (listed <-chan struct{}, release func()) {
	held := make(chan struct{})
	resume := make(chan struct{})
	var first atomic.Bool
	m.afterList = func() {
		if !first.CompareAndSwap(false, true) {
			return
		}
		close(held)
		<-resume
	}
	return held, sync.OnceFunc(func() { close(resume) })
}

func (m *mockStore) listProviderRecords(tenantID string) ([]provider.Record, error) {
	defer m.lock()()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []provider.Record
	for _, r := range m.state.providers {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) CreateProviderRecord(_ context.Context, r *provider.Record) (*provider.Record, error) {
	defer m.lock()()
	if m.createWithoutID {
		return &provider.Record{}, nil
	}
	for _, e := range m.state.providers {
		if e.TenantID == r.TenantID && e.ProviderName == r.ProviderName &&
			e.ProviderType == r.ProviderType && e.QuotaType == r.QuotaType {
			return nil, domain.ErrConflict
		}
	}
	c := *r
	c.ID = m.state.id("prov")
	c.Version = 1
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.state.providers = append(m.state.providers, c)
	return &c, nil
}

func (m *mockStore) UpdateProviderRecord(_ context.Context, r *provider.Record) (*provider.Record, error) {
	defer m.lock()()
	if m.updateProviderErr != nil {
		return nil, m.updateProviderErr
	}
	for i := range m.state.providers {
		e := &m.state.providers[i]
		if e.ID != r.ID || e.TenantID != r.TenantID {
			continue
		}
		if e.Version != r.Version {
			return nil, domain.ErrConflict
		}
		c := *r
		c.Version++
		c.UpdatedAt = time.Now()
		*e = c
		return &c, nil
	}
	return nil, domain.ErrConflict
}

func (m *mockStore) DeleteProviderRecord(_ context.Context, tenantID, id string) error {
	defer m.lock()()
	for i, r := range m.state.providers {
		if r.ID == id && r.TenantID == tenantID {
			m.state.providers = append(m.state.providers[:i], m.state.providers[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) GetProviderModelRecord(_ context.Context, tenantID, providerName, modelName string, t provider.ModelType) (*provider.ModelRecord, error) {
	defer m.lock()()
	for _, r := range m.state.models {
		if r.TenantID == tenantID && r.ProviderName == providerName && r.ModelName == modelName && r.ModelType == t {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListProviderModelRecords(_ context.Context, tenantID string) ([]provider.ModelRecord, error) {
	defer m.lock()()
	var out []provider.ModelRecord
	for _, r := range m.state.models {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) CreateProviderModelRecord(_ context.Context, r *provider.ModelRecord) (*provider.ModelRecord, error) {
	defer m.lock()()
	c := *r
	c.ID = m.state.id("model")
	c.Version = 1
	m.state.models = append(m.state.models, c)
	return &c, nil
}

func (m *mockStore) UpdateProviderModelRecord(_ context.Context, r *provider.ModelRecord) (*provider.ModelRecord, error) {
	defer m.lock()()
	for i := range m.state.models {
		e := &m.state.models[i]
		if e.ID != r.ID {
			continue
		}
		if e.Version != r.Version {
			return nil, domain.ErrConflict
		}
		c := *r
		c.Version++
		*e = c
		return &c, nil
	}
	return nil, domain.ErrConflict
}

func (m *mockStore) DeleteProviderModelRecord(_ context.Context, tenantID, id string) error {
	defer m.lock()()
	for i, r := range m.state.models {
		if r.ID == id && r.TenantID == tenantID {
			m.state.models = append(m.state.models[:i], m.state.models[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) GetPreferredProviderType(_ context.Context, tenantID, providerName string) (*provider.PreferredTypeRecord, error) {
	defer m.lock()()
	for _, r := range m.state.preferred {
		if r.TenantID == tenantID && r.ProviderName == providerName {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListPreferredProviderTypes(_ context.Context, tenantID string) ([]provider.PreferredTypeRecord, error) {
	defer m.lock()()
	var out []provider.PreferredTypeRecord
	for _, r := range m.state.preferred {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) UpsertPreferredProviderType(_ context.Context, tenantID, providerName string, t provider.ProviderType) error {
	defer m.lock()()
	if m.upsertPreferredErr != nil {
		return m.upsertPreferredErr
	}
	for i := range m.state.preferred {
		r := &m.state.preferred[i]
		if r.TenantID == tenantID && r.ProviderName == providerName {
			r.PreferredProviderType = t
			return nil
		}
	}
	m.state.preferred = append(m.state.preferred, provider.PreferredTypeRecord{
		ID: m.state.id("pref"), TenantID: tenantID, ProviderName: providerName, PreferredProviderType: t,
	})
	return nil
}

func (m *mockStore) ListModelSettings(_ context.Context, tenantID string) ([]provider.ModelSettingRecord, error) {
	defer m.lock()()
	var out []provider.ModelSettingRecord
	for _, r := range m.state.settings {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) UpsertModelSetting(_ context.Context, tenantID, providerName, modelName string, t provider.ModelType, enabled bool) error {
	defer m.lock()()
	for i := range m.state.settings {
		r := &m.state.settings[i]
		if r.TenantID == tenantID && r.ProviderName == providerName && r.ModelName == modelName && r.ModelType == t {
			r.Enabled = enabled
			return nil
		}
	}
	m.state.settings = append(m.state.settings, provider.ModelSettingRecord{
		ID: m.state.id("setting"), TenantID: tenantID, ProviderName: providerName,
		ModelName: modelName, ModelType: t, Enabled: enabled,
	})
	return nil
}

func (m *mockStore) CreateTenant(_ context.Context, name string) (*tenant.Tenant, error) {
	defer m.lock()()
	t := tenant.Tenant{ID: m.state.id("tenant"), Name: name, Enabled: true}
	m.state.tenants = append(m.state.tenants, t)
	return &t, nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	defer m.lock()()
	for _, t := range m.state.tenants {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) SetTenantPublicKey(_ context.Context, id, publicKeyPEM string) error {
	defer m.lock()()
	for i := range m.state.tenants {
		if m.state.tenants[i].ID == id {
			m.state.tenants[i].EncryptPublicKey = publicKeyPEM
			return nil
		}
	}
	return domain.ErrNotFound
}

// customRecord returns the stored custom provider record, failing the test
// when there is none.
func (m *mockStore) customRecord(t *testing.T, providerName string) provider.Record {
	t.Helper()
	r, err := m.GetProviderRecord(context.Background(), testTenantID, providerName, provider.ProviderTypeCustom)
	if err != nil {
		t.Fatalf("custom record for %s: %v", providerName, err)
	}
	return *r
}

type testKeyPair struct {
	public, private string
}

var testKeys = sync.OnceValue(func() testKeyPair {
	pub, priv, err := crypto.GenerateKeyPair(crypto.DefaultKeyBits)
	if err != nil {
		panic(err)
	}
	return testKeyPair{public: pub, private: priv}
})

// staticKeys serves one keypair for testTenantID and counts private key reads.
type staticKeys struct {
	privateReads atomic.Int32
}

var _ keystore.KeyStore = (*staticKeys)(nil)

func (k *staticKeys) PublicKey(_ context.Context, tenantID string) (string, error) {
	if tenantID != testTenantID {
		return "", keystore.ErrKeyNotFound
	}
	return testKeys().public, nil
}

func (k *staticKeys) PrivateKey(_ context.Context, tenantID string) (string, error) {
	if tenantID != testTenantID {
		return "", keystore.ErrKeyNotFound
	}
	k.privateReads.Add(1)
	return testKeys().private, nil
}

var errCacheDown = errors.New("cache down")

// memCache is an in-memory cache.Cache that can be switched off.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	down    bool
	deletes []string
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, false, errCacheDown
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errCacheDown
	}
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, key)
	if c.down {
		return errCacheDown
	}
	delete(c.data, key)
	return nil
}

func (c *memCache) DeleteLocal(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

func (c *memCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.data))
	for k := range c.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// recordingQueue records publishes and captures the subscribed handler.
type recordingQueue struct {
	mu        sync.Mutex
	published []messagequeue.CredentialsInvalidatePayload
	handler   messagequeue.Handler
}

var (
	_ messagequeue.Publisher  = (*recordingQueue)(nil)
	_ messagequeue.Subscriber = (*recordingQueue)(nil)
)

func (q *recordingQueue) Publish(_ context.Context, _ string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	var p messagequeue.CredentialsInvalidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	q.published = append(q.published, p)
	return nil
}

func (q *recordingQueue) Subscribe(_ context.Context, _ string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
	return func() {}, nil
}

// staticRegistry is a provider.SchemaRegistry over fixed schemas.
type staticRegistry map[string]*provider.Schema

func (r staticRegistry) Get(name string) (*provider.Schema, bool) {
	s, ok := r[name]
	return s, ok
}

func (r staticRegistry) List() []*provider.Schema {
	out := make([]*provider.Schema, 0, len(r))
	for _, s := range r {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func testRegistry() staticRegistry {
	return staticRegistry{
		"openai": {
			Provider:            "openai",
			SupportedModelTypes: []provider.ModelType{provider.ModelTypeLLM, provider.ModelTypeTextEmbedding},
			ProviderCredentialSchema: &provider.CredentialSchema{Forms: []provider.CredentialFormSchema{
				{Variable: "api_key", Type: provider.FormTypeSecretInput, Required: true},
				{Variable: "organization", Type: provider.FormTypeTextInput},
			}},
			ModelCredentialSchema: &provider.CredentialSchema{Forms: []provider.CredentialFormSchema{
				{Variable: "api_key", Type: provider.FormTypeSecretInput, Required: true},
				{Variable: "endpoint", Type: provider.FormTypeTextInput},
			}},
		},
		"anthropic": {
			Provider:            "anthropic",
			SupportedModelTypes: []provider.ModelType{provider.ModelTypeLLM},
			ProviderCredentialSchema: &provider.CredentialSchema{Forms: []provider.CredentialFormSchema{
				{Variable: "anthropic_api_key", Type: provider.FormTypeSecretInput, Required: true},
			}},
		},
	}
}

// testHosting hosts openai with a trial quota restricted to gpt-4 mapped to
// the "gpt-4-deploy" upstream model.
func testHosting(t *testing.T) *HostingConfiguration {
	t.Helper()
	vault, err := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"HOSTED_OPENAI_KEY": "sk-hosted-0000000000"}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewHostingConfiguration(config.Hosting{Providers: []config.HostedProvider{{
		Provider:    "openai",
		Enabled:     true,
		Credentials: map[string]string{"api_key": "HOSTED_OPENAI_KEY"},
		Quotas: []config.HostedQuota{{
			Type:  "trial",
			Limit: 100,
			RestrictModels: []config.HostedRestrictModel{
				{Model: "gpt-4", ModelType: "llm", BaseModelName: "gpt-4-deploy"},
			},
		}},
	}}}, vault)
}

type managerFixture struct {
	store   *mockStore
	keys    *staticKeys
	cache   *memCache
	queue   *recordingQueue
	manager *ProviderManager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	sealer, err := crypto.NewSealer("test-cache-secret", "credentials-cache")
	if err != nil {
		t.Fatal(err)
	}
	f := &managerFixture{
		store: newMockStore(),
		keys:  &staticKeys{},
		cache: newMemCache(),
		queue: &recordingQueue{},
	}
	f.manager = NewProviderManager(f.store, testRegistry(), testHosting(t),
		NewEncrypter(f.keys), NewCredentialsCache(f.cache, sealer, 0), 4)
	f.manager.SetQueue(f.queue, "node-a")
	return f
}

// configuration resolves providerName for testTenantID.
func (f *managerFixture) configuration(t *testing.T, providerName string) *provider.Configuration {
	t.Helper()
	cfg, err := f.manager.GetConfiguration(context.Background(), testTenantID, providerName)
	if err != nil {
		t.Fatalf("GetConfiguration(%s): %v", providerName, err)
	}
	return cfg
}

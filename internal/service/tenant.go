package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/CredForge/internal/crypto"
	"github.com/Strob0t/CredForge/internal/domain"
	"github.com/Strob0t/CredForge/internal/domain/tenant"
	"github.com/Strob0t/CredForge/internal/port/database"
	"github.com/Strob0t/CredForge/internal/port/keystore"
)

const maxTenantNameLen = 255

// TenantService manages tenant lifecycle and key provisioning.
type TenantService struct {
	store   database.Store
	keys    keystore.PrivateKeyWriter
	keyBits int
}

// NewTenantService creates a new TenantService.
func NewTenantService(store database.Store, keys keystore.PrivateKeyWriter) *TenantService {
	return &TenantService{store: store, keys: keys, keyBits: crypto.DefaultKeyBits}
}

// Create validates and creates a new tenant.
func (s *TenantService) Create(ctx context.Context, name string) (*tenant.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", domain.ErrValidation)
	}
	if len(name) > maxTenantNameLen {
		return nil, fmt.Errorf("%w: tenant name exceeds %d characters", domain.ErrValidation, maxTenantNameLen)
	}
	return s.store.CreateTenant(ctx, name)
}

// Get returns a tenant by ID.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// ProvisionKeyPair generates the tenant's RSA key pair. The private key is
// written before the public key is published, so a tenant never has a public
// key without its private half. Replacing an existing pair requires force:
// ciphertexts under the old key become unreadable.
func (s *TenantService) ProvisionKeyPair(ctx context.Context, id string, force bool) error {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return fmt.Errorf("tenant %s: %w", id, err)
	}
	if t.HasKeyPair() && !force {
		return fmt.Errorf("tenant %s already has a key pair: %w", id, domain.ErrConflict)
	}

	publicPEM, privatePEM, err := crypto.GenerateKeyPair(s.keyBits)
	if err != nil {
		return err
	}
	if err := s.keys.WritePrivateKey(ctx, t.ID, privatePEM); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := s.store.SetTenantPublicKey(ctx, t.ID, publicPEM); err != nil {
		return fmt.Errorf("store public key: %w", err)
	}

	slog.InfoContext(ctx, "tenant key pair provisioned", "tenant_id", t.ID, "replaced", t.HasKeyPair())
	return nil
}

// ValidateExists checks that the tenant exists and is enabled.
func (s *TenantService) ValidateExists(ctx context.Context, id string) error {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return fmt.Errorf("tenant %s: %w", id, err)
	}
	if !t.Enabled {
		return fmt.Errorf("%w: tenant %s is disabled", domain.ErrValidation, id)
	}
	return nil
}

// Package keystore resolves tenant RSA keypairs: the public half from the
// tenant row, the private half from PEM files on disk.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Strob0t/CredForge/internal/domain"
	"github.com/Strob0t/CredForge/internal/domain/tenant"
	"github.com/Strob0t/CredForge/internal/port/keystore"
)

const privateKeyFile = "private.pem"

// FileStore reads private keys from <dir>/<tenantID>/private.pem. Files are
// read on every call and never held in memory afterwards.
type FileStore struct {
	dir string
}

var _ keystore.PrivateKeyWriter = (*FileStore)(nil)

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(tenantID string) (string, error) {
	// The tenant id becomes a path segment, so only canonical UUIDs pass.
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return "", fmt.Errorf("%w: invalid tenant id %q", domain.ErrValidation, tenantID)
	}
	return filepath.Join(s.dir, id.String(), privateKeyFile), nil
}

// PrivateKey returns the tenant's PEM private key.
func (s *FileStore) PrivateKey(_ context.Context, tenantID string) (string, error) {
	p, err := s.path(tenantID)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("private key for tenant %s: %w", tenantID, keystore.ErrKeyNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read private key: %w", err)
	}
	return string(b), nil
}

// WritePrivateKey stores pem for the tenant, replacing any existing key.
func (s *FileStore) WritePrivateKey(_ context.Context, tenantID, pem string) error {
	p, err := s.path(tenantID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(pem), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install private key: %w", err)
	}
	return nil
}

// TenantGetter loads tenant rows.
type TenantGetter interface {
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
}

// Composite implements keystore.KeyStore over the tenant table and a FileStore.
type Composite struct {
	tenants TenantGetter
	files   *FileStore
}

var _ keystore.KeyStore = (*Composite)(nil)

// NewComposite combines tenant public keys with on-disk private keys.
func NewComposite(tenants TenantGetter, files *FileStore) *Composite {
	return &Composite{tenants: tenants, files: files}
}

// PublicKey returns the PEM public key stored on the tenant row.
func (c *Composite) PublicKey(ctx context.Context, tenantID string) (string, error) {
	t, err := c.tenants.GetTenant(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("public key for tenant %s: %w", tenantID, keystore.ErrKeyNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get tenant: %w", err)
	}
	if !t.HasKeyPair() {
		return "", fmt.Errorf("public key for tenant %s: %w", tenantID, keystore.ErrKeyNotFound)
	}
	return t.EncryptPublicKey, nil
}

// PrivateKey returns the tenant's PEM private key from disk.
func (c *Composite) PrivateKey(ctx context.Context, tenantID string) (string, error) {
	return c.files.PrivateKey(ctx, tenantID)
}

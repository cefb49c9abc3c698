package postgres

import (
	"context"

	"github.com/Strob0t/CredForge/internal/domain/tenant"
)

// encrypt_public_key is '' until keygen runs.
const tenantColumns = `id, name, enabled, encrypt_public_key, created_at, updated_at`

func scanTenant(row scannable) (*tenant.Tenant, error) {
	var t tenant.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Enabled, &t.EncryptPublicKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTenant(ctx context.Context, name string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`INSERT INTO tenants (name) VALUES ($1) RETURNING `+tenantColumns, name))
	if err != nil {
		return nil, wrap(err, "create tenant %q", name)
	}
	return t, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(err, "get tenant %s", id)
	}
	return t, nil
}

// SetTenantPublicKey replaces the key in place; rows encrypted under the old
// key become unreadable, which is why keygen refuses without --force.
func (s *Store) SetTenantPublicKey(ctx context.Context, id, publicKeyPEM string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET encrypt_public_key = $2, updated_at = now() WHERE id = $1`, id, publicKeyPEM)
	return execExpectOne(tag, err, "set tenant public key %s", id)
}

package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/CredForge/internal/domain/provider"
)

const providerColumns = `id, tenant_id, provider_name, provider_type, encrypted_config, is_valid,
	quota_type, quota_limit, quota_used, version, created_by, updated_by, created_at, updated_at`

func scanProviderRecord(row scannable) (provider.Record, error) {
	var r provider.Record
	var cfg string
	err := row.Scan(&r.ID, &r.TenantID, &r.ProviderName, &r.ProviderType, &cfg, &r.IsValid,
		&r.QuotaType, &r.QuotaLimit, &r.QuotaUsed, &r.Version, &r.CreatedBy, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	if cfg != "" {
		r.EncryptedConfig = []byte(cfg)
	}
	return r, nil
}

// --- Provider records ---

func (s *Store) GetProviderRecord(ctx context.Context, tenantID, providerName string, t provider.ProviderType) (*provider.Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+providerColumns+`
		 FROM provider_credentials
		 WHERE tenant_id = $1 AND provider_name = $2 AND provider_type = $3
		 ORDER BY created_at ASC LIMIT 1`, tenantID, providerName, t)
	r, err := scanProviderRecord(row)
	if err != nil {
		return nil, wrap(err, "get provider record %s/%s", providerName, t)
	}
	return &r, nil
}

func (s *Store) ListProviderRecords(ctx context.Context, tenantID string) ([]provider.Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+providerColumns+`
		 FROM provider_credentials WHERE tenant_id = $1
		 ORDER BY provider_name, created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list provider records: %w", err)
	}
	records, err := collect(rows, scanProviderRecord)
	if err != nil {
		return nil, fmt.Errorf("list provider records: %w", err)
	}
	return records, nil
}

func (s *Store) CreateProviderRecord(ctx context.Context, r *provider.Record) (*provider.Record, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO provider_credentials
		   (tenant_id, provider_name, provider_type, encrypted_config, is_valid, quota_type, quota_limit, quota_used, created_by, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 RETURNING `+providerColumns,
		r.TenantID, r.ProviderName, r.ProviderType, string(r.EncryptedConfig), r.IsValid,
		r.QuotaType, r.QuotaLimit, r.QuotaUsed, r.CreatedBy)
	created, err := scanProviderRecord(row)
	if err != nil {
		return nil, wrap(err, "create provider record %s", r.ProviderName)
	}
	return &created, nil
}

func (s *Store) UpdateProviderRecord(ctx context.Context, r *provider.Record) (*provider.Record, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE provider_credentials
		 SET encrypted_config = $3, is_valid = $4, quota_limit = $5, quota_used = $6, updated_by = $7,
		     version = version + 1, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND version = $8
		 RETURNING `+providerColumns,
		r.ID, r.TenantID, string(r.EncryptedConfig), r.IsValid, r.QuotaLimit, r.QuotaUsed, r.UpdatedBy, r.Version)
	updated, err := scanProviderRecord(row)
	if err != nil {
		return nil, lostUpdate(err, "update provider record %s", r.ID)
	}
	return &updated, nil
}

func (s *Store) DeleteProviderRecord(ctx context.Context, tenantID, id string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM provider_credentials WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return execExpectOne(tag, err, "delete provider record %s", id)
}

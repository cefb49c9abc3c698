package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/CredForge/internal/domain/provider"
)

const modelColumns = `id, tenant_id, provider_name, model_name, model_type, encrypted_config, is_valid,
	version, created_by, updated_by, created_at, updated_at`

func scanModelRecord(row scannable) (provider.ModelRecord, error) {
	var r provider.ModelRecord
	var cfg string
	err := row.Scan(&r.ID, &r.TenantID, &r.ProviderName, &r.ModelName, &r.ModelType, &cfg, &r.IsValid,
		&r.Version, &r.CreatedBy, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	if cfg != "" {
		r.EncryptedConfig = []byte(cfg)
	}
	return r, nil
}

// --- Provider model records ---

func (s *Store) GetProviderModelRecord(ctx context.Context, tenantID, providerName, modelName string, t provider.ModelType) (*provider.ModelRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+modelColumns+`
		 FROM provider_model_credentials
		 WHERE tenant_id = $1 AND provider_name = $2 AND model_name = $3 AND model_type = $4`,
		tenantID, providerName, modelName, t)
	r, err := scanModelRecord(row)
	if err != nil {
		return nil, wrap(err, "get model record %s/%s", providerName, modelName)
	}
	return &r, nil
}

func (s *Store) ListProviderModelRecords(ctx context.Context, tenantID string) ([]provider.ModelRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+modelColumns+`
		 FROM provider_model_credentials WHERE tenant_id = $1
		 ORDER BY provider_name, model_name, model_type`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list model records: %w", err)
	}
	records, err := collect(rows, scanModelRecord)
	if err != nil {
		return nil, fmt.Errorf("list model records: %w", err)
	}
	return records, nil
}

func (s *Store) CreateProviderModelRecord(ctx context.Context, r *provider.ModelRecord) (*provider.ModelRecord, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO provider_model_credentials
		   (tenant_id, provider_name, model_name, model_type, encrypted_config, is_valid, created_by, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 RETURNING `+modelColumns,
		r.TenantID, r.ProviderName, r.ModelName, r.ModelType, string(r.EncryptedConfig), r.IsValid, r.CreatedBy)
	created, err := scanModelRecord(row)
	if err != nil {
		return nil, wrap(err, "create model record %s/%s", r.ProviderName, r.ModelName)
	}
	return &created, nil
}

func (s *Store) UpdateProviderModelRecord(ctx context.Context, r *provider.ModelRecord) (*provider.ModelRecord, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE provider_model_credentials
		 SET encrypted_config = $3, is_valid = $4, updated_by = $5, version = version + 1, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND version = $6
		 RETURNING `+modelColumns,
		r.ID, r.TenantID, string(r.EncryptedConfig), r.IsValid, r.UpdatedBy, r.Version)
	updated, err := scanModelRecord(row)
	if err != nil {
		return nil, lostUpdate(err, "update model record %s", r.ID)
	}
	return &updated, nil
}

func (s *Store) DeleteProviderModelRecord(ctx context.Context, tenantID, id string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM provider_model_credentials WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return execExpectOne(tag, err, "delete model record %s", id)
}

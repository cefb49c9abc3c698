package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/CredForge/internal/domain/provider"
)

// --- Preferred provider types ---

func scanPreferred(row scannable) (provider.PreferredTypeRecord, error) {
	var p provider.PreferredTypeRecord
	err := row.Scan(&p.ID, &p.TenantID, &p.ProviderName, &p.PreferredProviderType, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetPreferredProviderType(ctx context.Context, tenantID, providerName string) (*provider.PreferredTypeRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, provider_name, preferred_provider_type, created_at, updated_at
		 FROM provider_preferences WHERE tenant_id = $1 AND provider_name = $2`, tenantID, providerName)
	p, err := scanPreferred(row)
	if err != nil {
		return nil, wrap(err, "get preferred type %s", providerName)
	}
	return &p, nil
}

func (s *Store) ListPreferredProviderTypes(ctx context.Context, tenantID string) ([]provider.PreferredTypeRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, provider_name, preferred_provider_type, created_at, updated_at
		 FROM provider_preferences WHERE tenant_id = $1 ORDER BY provider_name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list preferred types: %w", err)
	}
	prefs, err := collect(rows, scanPreferred)
	if err != nil {
		return nil, fmt.Errorf("list preferred types: %w", err)
	}
	return prefs, nil
}

func (s *Store) UpsertPreferredProviderType(ctx context.Context, tenantID, providerName string, t provider.ProviderType) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO provider_preferences (tenant_id, provider_name, preferred_provider_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, provider_name)
		 DO UPDATE SET preferred_provider_type = EXCLUDED.preferred_provider_type, updated_at = now()`,
		tenantID, providerName, t)
	if err != nil {
		return fmt.Errorf("upsert preferred type %s: %w", providerName, err)
	}
	return nil
}

// --- Model settings ---

func scanModelSetting(row scannable) (provider.ModelSettingRecord, error) {
	var m provider.ModelSettingRecord
	err := row.Scan(&m.ID, &m.TenantID, &m.ProviderName, &m.ModelName, &m.ModelType, &m.Enabled, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (s *Store) ListModelSettings(ctx context.Context, tenantID string) ([]provider.ModelSettingRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, provider_name, model_name, model_type, enabled, created_at, updated_at
		 FROM provider_model_settings WHERE tenant_id = $1
		 ORDER BY provider_name, model_name, model_type`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list model settings: %w", err)
	}
	settings, err := collect(rows, scanModelSetting)
	if err != nil {
		return nil, fmt.Errorf("list model settings: %w", err)
	}
	return settings, nil
}

func (s *Store) UpsertModelSetting(ctx context.Context, tenantID, providerName, modelName string, t provider.ModelType, enabled bool) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO provider_model_settings (tenant_id, provider_name, model_name, model_type, enabled)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id, provider_name, model_name, model_type)
		 DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()`,
		tenantID, providerName, modelName, t, enabled)
	if err != nil {
		return fmt.Errorf("upsert model setting %s/%s: %w", providerName, modelName, err)
	}
	return nil
}

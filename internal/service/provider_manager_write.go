package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cfotel "github.com/Strob0t/CredForge/internal/adapter/otel"
	"github.com/Strob0t/CredForge/internal/domain"
	"github.com/Strob0t/CredForge/internal/domain/credential"
	"github.com/Strob0t/CredForge/internal/domain/provider"
	"github.com/Strob0t/CredForge/internal/port/database"
)

// storedCredentials loads the custom provider record of cfg, if any, and its
// stored (still encrypted) credential map.
func (m *ProviderManager) storedCredentials(ctx context.Context, cfg *provider.Configuration) (*provider.Record, credential.Credentials, error) {
	rec, err := m.store.GetProviderRecord(ctx, cfg.TenantID, cfg.Provider, provider.ProviderTypeCustom)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load provider record: %w", err)
	}
	stored, err := credential.Unmarshal(rec.EncryptedConfig)
	if err != nil {
		return nil, nil, err
	}
	return rec, stored, nil
}

// prepare validates incoming against schema, restores hidden and masked
// secrets from stored and encrypts every secret field.
func (m *ProviderManager) prepare(ctx context.Context, tenantID string, schema *provider.CredentialSchema, incoming, stored credential.Credentials) (credential.Credentials, error) {
	validated, err := schema.Validate(incoming)
	if err != nil {
		return nil, err
	}
	secretVars := schema.SecretVariables()
	restored, err := credential.Restore(ctx, validated, stored, secretVars, m.codec, tenantID)
	if err != nil {
		return nil, err
	}
	restored, err = credential.RestoreMasked(ctx, restored, stored, secretVars, m.codec, tenantID)
	if err != nil {
		return nil, err
	}
	return credential.EncryptSecrets(ctx, restored, secretVars, m.codec, tenantID)
}

func (m *ProviderManager) validateCustom(ctx context.Context, cfg *provider.Configuration, incoming credential.Credentials) (*provider.Record, credential.Credentials, error) {
	if cfg.Schema == nil || cfg.Schema.ProviderCredentialSchema == nil {
		return nil, nil, fmt.Errorf("%w: provider %s does not accept provider credentials", domain.ErrValidation, cfg.Provider)
	}
	rec, stored, err := m.storedCredentials(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	encrypted, err := m.prepare(ctx, cfg.TenantID, cfg.Schema.ProviderCredentialSchema, incoming, stored)
	if err != nil {
		return nil, nil, err
	}
	return rec, encrypted, nil
}

// ValidateCustomCredentials checks incoming provider credentials, restores
// fields submitted as credential.HiddenValue from the stored record and
// returns the map with every secret field encrypted. Nothing is written.
func (m *ProviderManager) ValidateCustomCredentials(ctx context.Context, cfg *provider.Configuration, incoming credential.Credentials) (credential.Credentials, error) {
	_, encrypted, err := m.validateCustom(ctx, cfg, incoming)
	return encrypted, err
}

// AddOrUpdateCustomCredentials stores provider credentials and makes Custom
// the preferred provider type, in one transaction. A concurrent update of the
// same record fails with domain.ErrConflict.
func (m *ProviderManager) AddOrUpdateCustomCredentials(ctx context.Context, cfg *provider.Configuration, incoming credential.Credentials) (err error) {
	ctx, span := cfotel.StartWriteSpan(ctx, "save", cfg.TenantID, cfg.Provider)
	defer func() {
		m.metrics.Write(ctx, "save", cfg.Provider, err)
		cfotel.EndSpan(span, err)
	}()

	var recordID string
	err = m.store.InTx(ctx, func(tx database.Store) error {
		txm := m.WithStore(tx)
		rec, encrypted, err := txm.validateCustom(ctx, cfg, incoming)
		if err != nil {
			return err
		}
		blob, err := credential.Marshal(encrypted)
		if err != nil {
			return err
		}

		actor := actorFrom(ctx)
		if rec != nil {
			rec.EncryptedConfig = blob
			rec.IsValid = true
			rec.UpdatedBy = actor
			updated, err := tx.UpdateProviderRecord(ctx, rec)
			if err != nil {
				return fmt.Errorf("update provider record: %w", err)
			}
			recordID = updated.ID
		} else {
			created, err := tx.CreateProviderRecord(ctx, &provider.Record{
				TenantID:        cfg.TenantID,
				ProviderName:    cfg.Provider,
				ProviderType:    provider.ProviderTypeCustom,
				EncryptedConfig: blob,
				IsValid:         true,
				CreatedBy:       actor,
				UpdatedBy:       actor,
			})
			if err != nil {
				return fmt.Errorf("create provider record: %w", err)
			}
			if created == nil || created.ID == "" {
				return ErrRecordNotCreated
			}
			recordID = created.ID
		}

		return txm.switchPreferredProviderType(ctx, cfg, provider.ProviderTypeCustom)
	})
	if err != nil {
		return err
	}

	m.invalidate(ctx, CredentialsCacheKey{TenantID: cfg.TenantID, IdentityID: recordID, CacheType: CacheTypeProvider})
	slog.InfoContext(ctx, "custom credentials saved", "tenant_id", cfg.TenantID, "provider", cfg.Provider, "record_id", recordID)
	return nil
}

// SwitchPreferredProviderType records t as the tenant's preferred provider
// type. It is a no-op when t is already preferred, or when t is System and
// hosting is disabled for the provider.
func (m *ProviderManager) SwitchPreferredProviderType(ctx context.Context, cfg *provider.Configuration, t provider.ProviderType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown provider type %q", domain.ErrValidation, t)
	}
	if err := m.switchPreferredProviderType(ctx, cfg, t); err != nil {
		return err
	}
	m.forget(cfg.TenantID)
	return nil
}

func (m *ProviderManager) switchPreferredProviderType(ctx context.Context, cfg *provider.Configuration, t provider.ProviderType) error {
	if cfg.PreferredProviderType == t {
		return nil
	}
	if t == provider.ProviderTypeSystem && !cfg.SystemConfiguration.Enabled {
		return nil
	}
	if err := m.store.UpsertPreferredProviderType(ctx, cfg.TenantID, cfg.Provider, t); err != nil {
		return fmt.Errorf("upsert preferred provider type: %w", err)
	}
	return nil
}

// EnableModel clears the kill switch of a model.
func (m *ProviderManager) EnableModel(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType) error {
	return m.setModelEnabled(ctx, cfg, model, modelType, true)
}

// DisableModel makes GetCurrentCredentials return nil for a model.
func (m *ProviderManager) DisableModel(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType) error {
	return m.setModelEnabled(ctx, cfg, model, modelType, false)
}

func (m *ProviderManager) setModelEnabled(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType, enabled bool) error {
	if err := checkModel(cfg, model, modelType); err != nil {
		return err
	}
	if err := m.store.UpsertModelSetting(ctx, cfg.TenantID, cfg.Provider, model, modelType, enabled); err != nil {
		return fmt.Errorf("upsert model setting: %w", err)
	}
	m.forget(cfg.TenantID)
	return nil
}

func checkModel(cfg *provider.Configuration, model string, modelType provider.ModelType) error {
	if model == "" {
		return fmt.Errorf("%w: model is required", domain.ErrValidation)
	}
	if !modelType.Valid() {
		return fmt.Errorf("%w: unknown model type %q", domain.ErrValidation, modelType)
	}
	if cfg.Schema != nil && !cfg.Schema.SupportsModelType(modelType) {
		return fmt.Errorf("%w: provider %s does not support model type %s", domain.ErrValidation, cfg.Provider, modelType)
	}
	return nil
}

// DeleteCustomCredentials removes the tenant's provider credentials and
// switches the preferred type back to System.
func (m *ProviderManager) DeleteCustomCredentials(ctx context.Context, cfg *provider.Configuration) (err error) {
	ctx, span := cfotel.StartWriteSpan(ctx, "delete", cfg.TenantID, cfg.Provider)
	defer func() {
		m.metrics.Write(ctx, "delete", cfg.Provider, err)
		cfotel.EndSpan(span, err)
	}()

	var recordID string
	err = m.store.InTx(ctx, func(tx database.Store) error {
		txm := m.WithStore(tx)
		if err := txm.switchPreferredProviderType(ctx, cfg, provider.ProviderTypeSystem); err != nil {
			return err
		}
		rec, err := tx.GetProviderRecord(ctx, cfg.TenantID, cfg.Provider, provider.ProviderTypeCustom)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load provider record: %w", err)
		}
		if err := tx.DeleteProviderRecord(ctx, cfg.TenantID, rec.ID); err != nil {
			return fmt.Errorf("delete provider record: %w", err)
		}
		recordID = rec.ID
		return nil
	})
	if err != nil {
		return err
	}

	m.forget(cfg.TenantID)
	if recordID != "" {
		m.invalidate(ctx, CredentialsCacheKey{TenantID: cfg.TenantID, IdentityID: recordID, CacheType: CacheTypeProvider})
		slog.InfoContext(ctx, "custom credentials deleted", "tenant_id", cfg.TenantID, "provider", cfg.Provider, "record_id", recordID)
	}
	return nil
}

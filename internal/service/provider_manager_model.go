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

func (m *ProviderManager) validateCustomModel(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType, incoming credential.Credentials) (*provider.ModelRecord, credential.Credentials, error) {
	if err := checkModel(cfg, model, modelType); err != nil {
		return nil, nil, err
	}
	if cfg.Schema == nil || cfg.Schema.ModelCredentialSchema == nil {
		return nil, nil, fmt.Errorf("%w: provider %s does not accept model credentials", domain.ErrValidation, cfg.Provider)
	}

	rec, err := m.store.GetProviderModelRecord(ctx, cfg.TenantID, cfg.Provider, model, modelType)
	if errors.Is(err, domain.ErrNotFound) {
		rec, err = nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load provider model record: %w", err)
	}
	var stored credential.Credentials
	if rec != nil {
		if stored, err = credential.Unmarshal(rec.EncryptedConfig); err != nil {
			return nil, nil, err
		}
	}

	encrypted, err := m.prepare(ctx, cfg.TenantID, cfg.Schema.ModelCredentialSchema, incoming, stored)
	if err != nil {
		return nil, nil, err
	}
	return rec, encrypted, nil
}

// ValidateCustomModelCredentials is ValidateCustomCredentials for a single model.
func (m *ProviderManager) ValidateCustomModelCredentials(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType, incoming credential.Credentials) (credential.Credentials, error) {
	_, encrypted, err := m.validateCustomModel(ctx, cfg, model, modelType, incoming)
	return encrypted, err
}

// AddOrUpdateCustomModelCredentials stores credentials for one model. The
// preferred provider type is left alone.
func (m *ProviderManager) AddOrUpdateCustomModelCredentials(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType, incoming credential.Credentials) (err error) {
	ctx, span := cfotel.StartWriteSpan(ctx, "save_model", cfg.TenantID, cfg.Provider)
	defer func() {
		m.metrics.Write(ctx, "save_model", cfg.Provider, err)
		cfotel.EndSpan(span, err)
	}()

	var recordID string
	err = m.store.InTx(ctx, func(tx database.Store) error {
		rec, encrypted, err := m.WithStore(tx).validateCustomModel(ctx, cfg, model, modelType, incoming)
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
			updated, err := tx.UpdateProviderModelRecord(ctx, rec)
			if err != nil {
				return fmt.Errorf("update provider model record: %w", err)
			}
			recordID = updated.ID
			return nil
		}
		created, err := tx.CreateProviderModelRecord(ctx, &provider.ModelRecord{
			TenantID:        cfg.TenantID,
			ProviderName:    cfg.Provider,
			ModelName:       model,
			ModelType:       modelType,
			EncryptedConfig: blob,
			IsValid:         true,
			CreatedBy:       actor,
			UpdatedBy:       actor,
		})
		if err != nil {
			return fmt.Errorf("create provider model record: %w", err)
		}
		if created == nil || created.ID == "" {
			return ErrRecordNotCreated
		}
		recordID = created.ID
		return nil
	})
	if err != nil {
		return err
	}

	m.invalidate(ctx, CredentialsCacheKey{TenantID: cfg.TenantID, IdentityID: recordID, CacheType: CacheTypeProviderModel})
	slog.InfoContext(ctx, "custom model credentials saved", "tenant_id", cfg.TenantID,
		"provider", cfg.Provider, "model", model, "model_type", string(modelType), "record_id", recordID)
	return nil
}

// DeleteCustomModelCredentials removes the credentials of one model. Deleting
// credentials that do not exist is not an error.
func (m *ProviderManager) DeleteCustomModelCredentials(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType) (err error) {
	ctx, span := cfotel.StartWriteSpan(ctx, "delete_model", cfg.TenantID, cfg.Provider)
	defer func() {
		m.metrics.Write(ctx, "delete_model", cfg.Provider, err)
		cfotel.EndSpan(span, err)
	}()

	if err := checkModel(cfg, model, modelType); err != nil {
		return err
	}

	var recordID string
	err = m.store.InTx(ctx, func(tx database.Store) error {
		rec, err := tx.GetProviderModelRecord(ctx, cfg.TenantID, cfg.Provider, model, modelType)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load provider model record: %w", err)
		}
		if err := tx.DeleteProviderModelRecord(ctx, cfg.TenantID, rec.ID); err != nil {
			return fmt.Errorf("delete provider model record: %w", err)
		}
		recordID = rec.ID
		return nil
	})
	if err != nil {
		return err
	}

	if recordID != "" {
		m.invalidate(ctx, CredentialsCacheKey{TenantID: cfg.TenantID, IdentityID: recordID, CacheType: CacheTypeProviderModel})
	}
	return nil
}

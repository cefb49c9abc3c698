// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/CredForge/internal/domain/provider"
	"github.com/Strob0t/CredForge/internal/domain/tenant"
)

// Store is the port interface for provider credential persistence. All
// lookups are explicitly tenant-scoped.
type Store interface {
	// Provider records
	GetProviderRecord(ctx context.Context, tenantID, providerName string, t provider.ProviderType) (*provider.Record, error)
	ListProviderRecords(ctx context.Context, tenantID string) ([]provider.Record, error)
	CreateProviderRecord(ctx context.Context, r *provider.Record) (*provider.Record, error)
	// UpdateProviderRecord writes r if the stored version still equals
	// r.Version and bumps it; a stale version yields domain.ErrConflict.
	UpdateProviderRecord(ctx context.Context, r *provider.Record) (*provider.Record, error)
	DeleteProviderRecord(ctx context.Context, tenantID, id string) error

	// Provider model records
	GetProviderModelRecord(ctx context.Context, tenantID, providerName, modelName string, t provider.ModelType) (*provider.ModelRecord, error)
	ListProviderModelRecords(ctx context.Context, tenantID string) ([]provider.ModelRecord, error)
	CreateProviderModelRecord(ctx context.Context, r *provider.ModelRecord) (*provider.ModelRecord, error)
	UpdateProviderModelRecord(ctx context.Context, r *provider.ModelRecord) (*provider.ModelRecord, error)
	DeleteProviderModelRecord(ctx context.Context, tenantID, id string) error

	// Preferred provider types
	GetPreferredProviderType(ctx context.Context, tenantID, providerName string) (*provider.PreferredTypeRecord, error)
	ListPreferredProviderTypes(ctx context.Context, tenantID string) ([]provider.PreferredTypeRecord, error)
	UpsertPreferredProviderType(ctx context.Context, tenantID, providerName string, t provider.ProviderType) error

	// Model settings
	ListModelSettings(ctx context.Context, tenantID string) ([]provider.ModelSettingRecord, error)
	UpsertModelSetting(ctx context.Context, tenantID, providerName, modelName string, t provider.ModelType, enabled bool) error

	// Tenants
	CreateTenant(ctx context.Context, name string) (*tenant.Tenant, error)
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	SetTenantPublicKey(ctx context.Context, id, publicKeyPEM string) error

	// InTx runs fn inside a transaction and commits when fn returns nil. The
	// Store passed to fn is bound to the transaction. Calling InTx on a
	// transaction-bound Store joins the outer transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

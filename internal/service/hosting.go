package service

import (
	"log/slog"

	"github.com/Strob0t/CredForge/internal/config"
	"github.com/Strob0t/CredForge/internal/domain/credential"
	"github.com/Strob0t/CredForge/internal/domain/provider"
	"github.com/Strob0t/CredForge/internal/secrets"
)

// HostingConfiguration knows which providers the platform hosts and resolves
// their shared credentials from the secret vault on every call, so a vault
// reload takes effect without a restart.
type HostingConfiguration struct {
	providers map[string]config.HostedProvider
	vault     *secrets.Vault
}

// NewHostingConfiguration indexes cfg by provider name.
func NewHostingConfiguration(cfg config.Hosting, vault *secrets.Vault) *HostingConfiguration {
	h := &HostingConfiguration{
		providers: make(map[string]config.HostedProvider, len(cfg.Providers)),
		vault:     vault,
	}
	for _, p := range cfg.Providers {
		h.providers[p.Provider] = p
	}
	return h
}

// credentials resolves the hosted credentials of p. ok is false when any
// referenced secret is missing; the provider is then treated as disabled.
func (h *HostingConfiguration) credentials(p config.HostedProvider) (credential.Credentials, bool) {
	out := make(credential.Credentials, len(p.Credentials))
	for variable, key := range p.Credentials {
		v, ok := h.vault.Lookup(key)
		if !ok || v == "" {
			slog.Warn("hosted provider secret missing", "provider", p.Provider, "variable", variable, "secret_key", key)
			return nil, false
		}
		out[variable] = v
	}
	return out, true
}

// SystemConfiguration builds the hosted configuration of providerName for a
// tenant. records are the tenant's system rows for that provider and carry
// quota usage. A declared quota without a row is unused: full limit, valid.
func (h *HostingConfiguration) SystemConfiguration(providerName string, records []provider.Record) provider.SystemConfiguration {
	p, ok := h.providers[providerName]
	if !ok || !p.Enabled {
		return provider.SystemConfiguration{}
	}
	creds, ok := h.credentials(p)
	if !ok {
		return provider.SystemConfiguration{}
	}

	quotas := make([]provider.QuotaConfiguration, 0, len(p.Quotas))
	for _, hq := range p.Quotas {
		q := provider.QuotaConfiguration{
			QuotaType:      provider.QuotaType(hq.Type),
			QuotaLimit:     hq.Limit,
			IsValid:        true,
			RestrictModels: restrictModels(hq.RestrictModels),
		}
		for i := range records {
			r := &records[i]
			if r.ProviderType != provider.ProviderTypeSystem || r.QuotaType != q.QuotaType {
				continue
			}
			q.QuotaLimit = r.QuotaLimit
			q.QuotaUsed = r.QuotaUsed
			q.IsValid = r.QuotaValid()
			break
		}
		quotas = append(quotas, q)
	}

	current, _ := provider.ChooseCurrentQuotaType(quotas)
	return provider.SystemConfiguration{
		Enabled:             true,
		CurrentQuotaType:    current,
		QuotaConfigurations: quotas,
		Credentials:         creds,
	}
}

func restrictModels(in []config.HostedRestrictModel) []provider.RestrictModel {
	if len(in) == 0 {
		return nil
	}
	out := make([]provider.RestrictModel, len(in))
	for i, m := range in {
		out[i] = provider.RestrictModel{
			Model:     m.Model,
			ModelType: provider.ModelType(m.ModelType),
			BaseModel: m.BaseModelName,
		}
	}
	return out
}

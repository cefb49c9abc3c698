package provider

import (
	"github.com/Strob0t/CredForge/internal/domain/credential"
)

// BaseModelNameKey is spliced into hosted credentials when a quota maps a
// model to a differently named upstream deployment.
const BaseModelNameKey = "base_model_name"

// Configuration is the resolved view of one provider for one tenant. It is
// built per request and treated as immutable: accessors return copies.
type Configuration struct {
	TenantID              string              `json:"tenant_id"`
	Provider              string              `json:"provider"`
	Schema                *Schema             `json:"-"`
	PreferredProviderType ProviderType        `json:"preferred_provider_type"`
	UsingProviderType     ProviderType        `json:"using_provider_type"`
	SystemConfiguration   SystemConfiguration `json:"system_configuration"`
	CustomConfiguration   CustomConfiguration `json:"custom_configuration"`
	ModelSettings         []ModelSettings     `json:"model_settings,omitempty"`
}

// NewConfiguration assembles a snapshot and derives the preferred and using
// provider types from the given state. preferred may be nil.
func NewConfiguration(tenantID string, schema *Schema, preferred *PreferredTypeRecord,
	system SystemConfiguration, custom CustomConfiguration, settings []ModelSettings,
) *Configuration {
	pref, using := ResolveProviderTypes(preferred, custom, system)
	return &Configuration{
		TenantID:              tenantID,
		Provider:              schema.Provider,
		Schema:                schema,
		PreferredProviderType: pref,
		UsingProviderType:     using,
		SystemConfiguration:   system,
		CustomConfiguration:   custom,
		ModelSettings:         settings,
	}
}

// ModelEnabled reports whether no model setting disables (model, modelType).
func (c *Configuration) ModelEnabled(model string, modelType ModelType) bool {
	for _, s := range c.ModelSettings {
		if s.Model == model && s.ModelType == modelType && !s.Enabled {
			return false
		}
	}
	return true
}

// GetCurrentCredentials returns the credentials an outbound call for
// (model, modelType) must use, or nil when the model is disabled or nothing
// usable is configured.
func (c *Configuration) GetCurrentCredentials(model string, modelType ModelType) credential.Credentials {
	if !c.ModelEnabled(model, modelType) {
		return nil
	}

	if c.UsingProviderType == ProviderTypeSystem {
		var restrict []RestrictModel
		if q, ok := c.SystemConfiguration.currentQuota(); ok {
			restrict = q.RestrictModels
		}
		out := c.SystemConfiguration.Credentials.Clone()
		if out == nil {
			out = credential.Credentials{}
		}
		for _, rm := range restrict {
			if rm.Model == model && rm.ModelType == modelType && rm.BaseModel != "" {
				out[BaseModelNameKey] = rm.BaseModel
			}
		}
		return out
	}

	for _, m := range c.CustomConfiguration.Models {
		if m.Model == model && m.ModelType == modelType {
			return m.Credentials.Clone()
		}
	}
	if p := c.CustomConfiguration.Provider; p != nil {
		return p.Credentials.Clone()
	}
	return nil
}

// GetSystemConfigurationStatus reports the hosted-credential status. ok is
// false when hosting is disabled or no quota matches the current quota type.
func (c *Configuration) GetSystemConfigurationStatus() (status SystemConfigurationStatus, ok bool) {
	if !c.SystemConfiguration.Enabled {
		return "", false
	}
	q, found := c.SystemConfiguration.currentQuota()
	if !found {
		return "", false
	}
	if q.IsValid {
		return SystemStatusActive, true
	}
	return SystemStatusQuotaExceeded, true
}

// IsCustomConfigurationAvailable reports whether the tenant supplied any
// provider or model credentials.
func (c *Configuration) IsCustomConfigurationAvailable() bool {
	return !c.CustomConfiguration.empty()
}

// GetCustomCredentials returns provider-level tenant credentials, masked
// when obfuscated is set. nil means none are configured.
func (c *Configuration) GetCustomCredentials(obfuscated bool) credential.Credentials {
	p := c.CustomConfiguration.Provider
	if p == nil {
		return nil
	}
	if !obfuscated {
		return p.Credentials.Clone()
	}
	return credential.Redact(p.Credentials, c.providerSecretVariables())
}

// GetCustomModelCredentials returns tenant credentials for one model.
func (c *Configuration) GetCustomModelCredentials(model string, modelType ModelType, obfuscated bool) credential.Credentials {
	for _, m := range c.CustomConfiguration.Models {
		if m.Model != model || m.ModelType != modelType {
			continue
		}
		if !obfuscated {
			return m.Credentials.Clone()
		}
		return credential.Redact(m.Credentials, c.modelSecretVariables())
	}
	return nil
}

func (c *Configuration) providerSecretVariables() []string {
	if c.Schema == nil {
		return nil
	}
	return c.Schema.ProviderSecretVariables()
}

func (c *Configuration) modelSecretVariables() []string {
	if c.Schema == nil {
		return nil
	}
	return c.Schema.ModelSecretVariables()
}

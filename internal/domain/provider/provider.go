// Package provider defines LLM provider credential records, provider schemas
// and the per-tenant runtime configuration that decides which credentials are
// authoritative for a given model.
package provider

import (
	"time"

	"github.com/Strob0t/CredForge/internal/domain/credential"
)

// ProviderType distinguishes tenant-supplied from platform-hosted credentials.
type ProviderType string

const (
	ProviderTypeCustom ProviderType = "custom"
	ProviderTypeSystem ProviderType = "system"
)

// Valid reports whether t is a known provider type.
func (t ProviderType) Valid() bool {
	return t == ProviderTypeCustom || t == ProviderTypeSystem
}

// QuotaType is the kind of usage ceiling attached to system-hosted credentials.
type QuotaType string

const (
	QuotaTypeTrial QuotaType = "trial"
	QuotaTypePaid  QuotaType = "paid"
	QuotaTypeFree  QuotaType = "free"
)

// ModelType is the capability family of a model.
type ModelType string

const (
	ModelTypeLLM           ModelType = "llm"
	ModelTypeTextEmbedding ModelType = "text-embedding"
	ModelTypeRerank        ModelType = "rerank"
	ModelTypeSpeech2Text   ModelType = "speech2text"
	ModelTypeTTS           ModelType = "tts"
	ModelTypeModeration    ModelType = "moderation"
)

var validModelTypes = map[ModelType]bool{
	ModelTypeLLM:           true,
	ModelTypeTextEmbedding: true,
	ModelTypeRerank:        true,
	ModelTypeSpeech2Text:   true,
	ModelTypeTTS:           true,
	ModelTypeModeration:    true,
}

// Valid reports whether t is a known model type.
func (t ModelType) Valid() bool {
	return validModelTypes[t]
}

// SystemConfigurationStatus summarises whether hosted credentials are usable.
type SystemConfigurationStatus string

const (
	SystemStatusActive        SystemConfigurationStatus = "active"
	SystemStatusQuotaExceeded SystemConfigurationStatus = "quota-exceeded"
	SystemStatusUnsupported   SystemConfigurationStatus = "unsupported"
)

// UnlimitedQuota marks a quota without an upper bound.
const UnlimitedQuota int64 = -1

// RestrictModel limits a quota to one model and optionally maps it to the
// deployment name used upstream (base_model_name).
type RestrictModel struct {
	Model     string    `json:"model" yaml:"model"`
	ModelType ModelType `json:"model_type" yaml:"model_type"`
	BaseModel string    `json:"base_model_name,omitempty" yaml:"base_model_name"`
}

// QuotaConfiguration is the tenant's usage state for one quota type. Usage
// accounting happens elsewhere; this package only reads it.
type QuotaConfiguration struct {
	QuotaType      QuotaType       `json:"quota_type"`
	QuotaLimit     int64           `json:"quota_limit"`
	QuotaUsed      int64           `json:"quota_used"`
	IsValid        bool            `json:"is_valid"`
	RestrictModels []RestrictModel `json:"restrict_models,omitempty"`
}

// SystemConfiguration describes platform-hosted credentials for a provider.
type SystemConfiguration struct {
	Enabled             bool                   `json:"enabled"`
	CurrentQuotaType    QuotaType              `json:"current_quota_type,omitempty"`
	QuotaConfigurations []QuotaConfiguration   `json:"quota_configurations,omitempty"`
	Credentials         credential.Credentials `json:"-"`
}

// currentQuota returns the quota entry matching CurrentQuotaType.
func (s *SystemConfiguration) currentQuota() (*QuotaConfiguration, bool) {
	for i := range s.QuotaConfigurations {
		if s.QuotaConfigurations[i].QuotaType == s.CurrentQuotaType {
			return &s.QuotaConfigurations[i], true
		}
	}
	return nil, false
}

// usable reports whether hosted credentials may be used right now.
func (s *SystemConfiguration) usable() bool {
	if !s.Enabled {
		return false
	}
	q, ok := s.currentQuota()
	return ok && q.IsValid
}

// CustomProviderConfiguration holds provider-level tenant credentials.
type CustomProviderConfiguration struct {
	Credentials credential.Credentials `json:"-"`
}

// CustomModelConfiguration holds tenant credentials for a single model.
type CustomModelConfiguration struct {
	Model       string                 `json:"model"`
	ModelType   ModelType              `json:"model_type"`
	Credentials credential.Credentials `json:"-"`
}

// CustomConfiguration groups the tenant's provider and model credentials.
type CustomConfiguration struct {
	Provider *CustomProviderConfiguration `json:"provider,omitempty"`
	Models   []CustomModelConfiguration   `json:"models,omitempty"`
}

// empty reports whether the tenant supplied nothing for this provider.
func (c *CustomConfiguration) empty() bool {
	return c.Provider == nil && len(c.Models) == 0
}

// ModelSettings is a per-model enable/disable override.
type ModelSettings struct {
	Model     string    `json:"model"`
	ModelType ModelType `json:"model_type"`
	Enabled   bool      `json:"enabled"`
}

// Record is a persisted provider row. Custom records carry the tenant's
// credentials with secret fields encrypted; system records carry quota state.
type Record struct {
	ID              string       `json:"id"`
	TenantID        string       `json:"tenant_id"`
	ProviderName    string       `json:"provider_name"`
	ProviderType    ProviderType `json:"provider_type"`
	EncryptedConfig []byte       `json:"-"`
	IsValid         bool         `json:"is_valid"`
	QuotaType       QuotaType    `json:"quota_type,omitempty"`
	QuotaLimit      int64        `json:"quota_limit"`
	QuotaUsed       int64        `json:"quota_used"`
	Version         int          `json:"version"`
	CreatedBy       string       `json:"created_by,omitempty"`
	UpdatedBy       string       `json:"updated_by,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// QuotaValid reports whether a system record still has quota left.
func (r *Record) QuotaValid() bool {
	if !r.IsValid {
		return false
	}
	return r.QuotaLimit == UnlimitedQuota || r.QuotaUsed < r.QuotaLimit
}

// ModelRecord is a persisted per-model custom credential row.
type ModelRecord struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	ProviderName    string    `json:"provider_name"`
	ModelName       string    `json:"model_name"`
	ModelType       ModelType `json:"model_type"`
	EncryptedConfig []byte    `json:"-"`
	IsValid         bool      `json:"is_valid"`
	Version         int       `json:"version"`
	CreatedBy       string    `json:"created_by,omitempty"`
	UpdatedBy       string    `json:"updated_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PreferredTypeRecord stores the tenant's explicit provider type choice.
type PreferredTypeRecord struct {
	ID                    string       `json:"id"`
	TenantID              string       `json:"tenant_id"`
	ProviderName          string       `json:"provider_name"`
	PreferredProviderType ProviderType `json:"preferred_provider_type"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// ModelSettingRecord stores an enable/disable override for one model.
type ModelSettingRecord struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	ProviderName string    `json:"provider_name"`
	ModelName    string    `json:"model_name"`
	ModelType    ModelType `json:"model_type"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

package provider

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/Strob0t/CredForge/internal/domain"
	"github.com/Strob0t/CredForge/internal/domain/credential"
)

// FormType is the input widget of a credential form field.
type FormType string

const (
	FormTypeTextInput   FormType = "text-input"
	FormTypeSecretInput FormType = "secret-input"
	FormTypeSelect      FormType = "select"
	FormTypeRadio       FormType = "radio"
	FormTypeSwitch      FormType = "switch"
)

// CredentialFormSchema declares one credential field.
type CredentialFormSchema struct {
	Variable  string   `yaml:"variable" json:"variable"`
	Label     string   `yaml:"label" json:"label"`
	Type      FormType `yaml:"type" json:"type"`
	Required  bool     `yaml:"required" json:"required"`
	Default   string   `yaml:"default" json:"default,omitempty"`
	Options   []string `yaml:"options" json:"options,omitempty"`
	MaxLength int      `yaml:"max_length" json:"max_length,omitempty"`
}

// SecretSchemaEntry is the secret-ness of one declared variable.
type SecretSchemaEntry struct {
	Variable string `json:"variable"`
	IsSecret bool   `json:"is_secret"`
}

// CredentialSchema is the full credential form of a provider or model.
type CredentialSchema struct {
	Forms []CredentialFormSchema `yaml:"credential_form_schemas" json:"credential_form_schemas"`
}

// Entries lists every declared variable with its secret flag.
func (s *CredentialSchema) Entries() []SecretSchemaEntry {
	if s == nil {
		return nil
	}
	out := make([]SecretSchemaEntry, 0, len(s.Forms))
	for _, f := range s.Forms {
		out = append(out, SecretSchemaEntry{Variable: f.Variable, IsSecret: f.Type == FormTypeSecretInput})
	}
	return out
}

// SecretVariables lists the variables whose values must be encrypted at rest
// and masked on display.
func (s *CredentialSchema) SecretVariables() []string {
	var out []string
	for _, e := range s.Entries() {
		if e.IsSecret {
			out = append(out, e.Variable)
		}
	}
	return out
}

// Validate checks c against the form and returns a cleaned copy: undeclared
// keys are dropped, defaults applied, switches coerced to bool. Secret fields
// holding credential.HiddenValue are accepted as-is; restoring them is the
// caller's job.
func (s *CredentialSchema) Validate(c credential.Credentials) (credential.Credentials, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: provider does not accept credentials", domain.ErrValidation)
	}
	out := credential.Credentials{}
	for _, f := range s.Forms {
		raw, present := c[f.Variable]
		str, isStr := raw.(string)
		if !present || raw == nil || (isStr && str == "") {
			if f.Required {
				return nil, fmt.Errorf("%w: variable %s is required", domain.ErrValidation, f.Variable)
			}
			if f.Default != "" {
				out[f.Variable] = f.Default
			}
			continue
		}

		switch f.Type {
		case FormTypeSwitch:
			b, err := toBool(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: variable %s must be a boolean", domain.ErrValidation, f.Variable)
			}
			out[f.Variable] = b
			continue
		case FormTypeSelect, FormTypeRadio:
			if !isStr || !slices.Contains(f.Options, str) {
				return nil, fmt.Errorf("%w: variable %s is not one of the allowed options", domain.ErrValidation, f.Variable)
			}
		default:
			if !isStr {
				return nil, fmt.Errorf("%w: variable %s must be a string", domain.ErrValidation, f.Variable)
			}
		}
		if f.MaxLength > 0 && len(str) > f.MaxLength && str != credential.HiddenValue {
			return nil, fmt.Errorf("%w: variable %s exceeds %d characters", domain.ErrValidation, f.Variable, f.MaxLength)
		}
		out[f.Variable] = str
	}
	return out, nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	default:
		return false, fmt.Errorf("not a boolean: %T", v)
	}
}

// Schema declares a provider: which model types it serves and the credential
// forms it accepts at provider and model level.
type Schema struct {
	Provider                 string            `yaml:"provider" json:"provider"`
	Label                    string            `yaml:"label" json:"label"`
	SupportedModelTypes      []ModelType       `yaml:"supported_model_types" json:"supported_model_types"`
	ProviderCredentialSchema *CredentialSchema `yaml:"provider_credential_schema" json:"provider_credential_schema,omitempty"`
	ModelCredentialSchema    *CredentialSchema `yaml:"model_credential_schema" json:"model_credential_schema,omitempty"`
}

// SupportsModelType reports whether t is served by this provider.
func (s *Schema) SupportsModelType(t ModelType) bool {
	return slices.Contains(s.SupportedModelTypes, t)
}

// ProviderSecretVariables lists secret variables of the provider-level form.
func (s *Schema) ProviderSecretVariables() []string {
	return s.ProviderCredentialSchema.SecretVariables()
}

// ModelSecretVariables lists secret variables of the model-level form.
func (s *Schema) ModelSecretVariables() []string {
	return s.ModelCredentialSchema.SecretVariables()
}

// SchemaRegistry looks up provider declarations. Declarations are immutable
// once loaded.
type SchemaRegistry interface {
	Get(provider string) (*Schema, bool)
	List() []*Schema
}

// Package yamlschema loads provider declarations from YAML. Built-in
// declarations are embedded; an optional file adds providers or replaces
// built-in ones by name.
package yamlschema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/CredForge/internal/domain/provider"
)

//go:embed providers.yaml
var builtin []byte

type document struct {
	Providers []*provider.Schema `yaml:"providers"`
}

// Registry implements provider.SchemaRegistry. It is immutable after Load.
type Registry struct {
	schemas map[string]*provider.Schema
}

var _ provider.SchemaRegistry = (*Registry)(nil)

// Load parses the built-in declarations and, when path is non-empty, merges
// the file at path over them. A missing file is an error: the path was
// configured explicitly.
func Load(path string) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*provider.Schema)}
	if err := r.merge(builtin, "built-in"); err != nil {
		return nil, err
	}
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider schema file %s: %w", path, err)
	}
	if err := r.merge(data, path); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) merge(data []byte, source string) error {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse provider schemas %s: %w", source, err)
	}
	seen := make(map[string]bool, len(doc.Providers))
	for i, s := range doc.Providers {
		if err := validate(s); err != nil {
			return fmt.Errorf("provider schemas %s: providers[%d]: %w", source, i, err)
		}
		if seen[s.Provider] {
			return fmt.Errorf("provider schemas %s: provider %s declared twice", source, s.Provider)
		}
		seen[s.Provider] = true
		r.schemas[s.Provider] = s
	}
	return nil
}

var knownFormTypes = map[provider.FormType]bool{
	provider.FormTypeTextInput:   true,
	provider.FormTypeSecretInput: true,
	provider.FormTypeSelect:      true,
	provider.FormTypeRadio:       true,
	provider.FormTypeSwitch:      true,
}

func validate(s *provider.Schema) error {
	if s == nil || s.Provider == "" {
		return errors.New("provider is required")
	}
	if len(s.SupportedModelTypes) == 0 {
		return fmt.Errorf("%s: supported_model_types is empty", s.Provider)
	}
	for _, t := range s.SupportedModelTypes {
		if !t.Valid() {
			return fmt.Errorf("%s: unknown model type %q", s.Provider, t)
		}
	}
	for _, cs := range []*provider.CredentialSchema{s.ProviderCredentialSchema, s.ModelCredentialSchema} {
		if cs == nil {
			continue
		}
		vars := make(map[string]bool, len(cs.Forms))
		for _, f := range cs.Forms {
			if f.Variable == "" {
				return fmt.Errorf("%s: form field without variable", s.Provider)
			}
			if vars[f.Variable] {
				return fmt.Errorf("%s: variable %s declared twice", s.Provider, f.Variable)
			}
			vars[f.Variable] = true
			if !knownFormTypes[f.Type] {
				return fmt.Errorf("%s: variable %s has unknown type %q", s.Provider, f.Variable, f.Type)
			}
			if (f.Type == provider.FormTypeSelect || f.Type == provider.FormTypeRadio) && len(f.Options) == 0 {
				return fmt.Errorf("%s: variable %s needs options", s.Provider, f.Variable)
			}
		}
	}
	return nil
}

// Get returns the declaration of a provider.
func (r *Registry) Get(name string) (*provider.Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// List returns all declarations sorted by provider name.
func (r *Registry) List() []*provider.Schema {
	out := make([]*provider.Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
